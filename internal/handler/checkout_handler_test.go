package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const checkoutBody = `{
	"couponCode": "SAVE10",
	"mode": "embedded",
	"deliveryAddress": {"name":"Asha","line1":"1 Main St","city":"Pune","postalCode":"411001","phone":"9999999999"}
}`

func TestCheckoutHandler_Quote(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedCoupon string
		expectedStatus int
	}{
		{name: "With coupon", body: `{"couponCode":"SAVE10"}`, expectedCoupon: "SAVE10", expectedStatus: http.StatusOK},
		{name: "Empty body", body: "", expectedStatus: http.StatusOK},
		{name: "Invalid JSON", body: `{"couponCode":`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())

			if tt.expectedStatus == http.StatusOK {
				mockService.On("Quote", mock.Anything, testUser, mock.MatchedBy(func(req *model.QuoteRequest) bool {
					return req.CouponCode == tt.expectedCoupon
				})).Return(&model.QuoteResponse{
					Breakdown: model.PriceBreakdown{Total: decimal.RequireFromString("601.8")},
				}, nil)
			}

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/checkout/quote", strings.NewReader(tt.body)))
			w := httptest.NewRecorder()

			handler.Quote(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestCheckoutHandler_CreateIntent(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name           string
		body           string
		mockReturn     *model.CheckoutIntent
		mockError      error
		expectService  bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "New intent",
			body:           checkoutBody,
			mockReturn:     &model.CheckoutIntent{ProvisionalID: id, OrderNumber: "ORD-1", Mode: model.PaymentModeEmbedded},
			expectService:  true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Reused placeholder",
			body:           checkoutBody,
			mockReturn:     &model.CheckoutIntent{ProvisionalID: id, OrderNumber: "ORD-1", Reused: true},
			expectService:  true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Empty cart",
			body:           checkoutBody,
			mockError:      model.ErrEmptyCart,
			expectService:  true,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeEmptyCart,
		},
		{
			name:           "Gateway unavailable",
			body:           checkoutBody,
			mockError:      &model.GatewayPendingError{ProvisionalID: id, OrderNumber: "ORD-1", Err: errors.New("timeout")},
			expectService:  true,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   model.ErrCodeGatewayOrderPending,
		},
		{
			name:           "Invalid JSON",
			body:           `{"mode":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())

			if tt.expectService {
				mockService.On("CreateIntent", mock.Anything, testUser, mock.MatchedBy(func(req *model.CheckoutRequest) bool {
					return req.CouponCode == "SAVE10" && req.Mode == model.PaymentModeEmbedded && req.DeliveryAddress.City == "Pune"
				})).Return(tt.mockReturn, tt.mockError)
			}

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/checkout/intents", strings.NewReader(tt.body)))
			w := httptest.NewRecorder()

			handler.CreateIntent(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, resp.Error)
				if tt.expectedCode == model.ErrCodeGatewayOrderPending {
					assert.Equal(t, id.String(), resp.ProvisionalID)
				}
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestCheckoutHandler_GetIntent(t *testing.T) {
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockCheckoutService)
		handler := NewCheckoutHandler(mockService, zerolog.Nop())
		mockService.On("GetIntent", mock.Anything, testUser, id).
			Return(&model.CheckoutIntent{ProvisionalID: id, Status: model.OrderStatusPending}, nil)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/checkout/intents/"+id.String(), nil))
		req.SetPathValue("id", id.String())
		w := httptest.NewRecorder()

		handler.GetIntent(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var intent model.CheckoutIntent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
		assert.Equal(t, id, intent.ProvisionalID)
		mockService.AssertExpectations(t)
	})

	t.Run("Malformed id", func(t *testing.T) {
		mockService := new(MockCheckoutService)
		handler := NewCheckoutHandler(mockService, zerolog.Nop())

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/checkout/intents/nope", nil))
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()

		handler.GetIntent(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockService.AssertNotCalled(t, "GetIntent", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckoutHandler_RetryIntent(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name           string
		mockError      error
		expectedStatus int
	}{
		{name: "Success", expectedStatus: http.StatusOK},
		{name: "Already paid", mockError: model.ErrOrderNotPending, expectedStatus: http.StatusConflict},
		{name: "Concurrent retry", mockError: model.ErrConfirmationInProgress, expectedStatus: http.StatusConflict},
		{name: "Gateway still down", mockError: model.ErrUpstreamUnavailable, expectedStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, zerolog.Nop())

			var intent *model.CheckoutIntent
			if tt.mockError == nil {
				intent = &model.CheckoutIntent{
					ProvisionalID: id,
					Mode:          model.PaymentModePaymentLink,
					PaymentLink:   &model.PaymentLinkInfo{LinkID: "plink_1", URL: "https://pay.example/plink_1"},
				}
			}
			mockService.On("RetryGatewayOrder", mock.Anything, testUser, id, model.PaymentModePaymentLink).
				Return(intent, tt.mockError)

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/checkout/intents/"+id.String()+"/retry",
				strings.NewReader(`{"mode":"payment_link"}`)))
			req.SetPathValue("id", id.String())
			w := httptest.NewRecorder()

			handler.RetryIntent(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}
