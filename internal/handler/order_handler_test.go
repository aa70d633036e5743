package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestOrderHandler_GetByID(t *testing.T) {
	orderID := uuid.New()
	order := &model.ConfirmedOrder{
		ID:          orderID,
		OrderNumber: "ORD-20260101120000-000042",
		Status:      model.OrderStatusConfirmed,
		TotalAmount: decimal.RequireFromString("601.8"),
		LineItems: []model.OrderLineItem{
			{ProductID: "P1", SellerID: "S1", Quantity: 2, Price: decimal.NewFromInt(250)},
		},
	}

	tests := []struct {
		name           string
		pathID         string
		mockReturn     *model.ConfirmedOrder
		mockError      error
		expectService  bool
		expectedStatus int
	}{
		{
			name:           "Success",
			pathID:         orderID.String(),
			mockReturn:     order,
			expectService:  true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Not found or not owned",
			pathID:         orderID.String(),
			mockError:      model.ErrOrderNotFound,
			expectService:  true,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Malformed id",
			pathID:         "12345",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockReconciliationService)
			handler := NewOrderHandler(mockService, zerolog.Nop())

			if tt.expectService {
				mockService.On("GetOrder", mock.Anything, testUser, orderID).Return(tt.mockReturn, tt.mockError)
			}

			req := withUser(httptest.NewRequest(http.MethodGet, "/api/orders/"+tt.pathID, nil))
			req.SetPathValue("id", tt.pathID)
			w := httptest.NewRecorder()

			handler.GetByID(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"orderNumber":"ORD-20260101120000-000042"`)
				assert.Contains(t, w.Body.String(), `"sellerId":"S1"`)
			}
			mockService.AssertExpectations(t)
		})
	}
}
