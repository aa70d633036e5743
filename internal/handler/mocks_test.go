package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testUser = auth.User{ID: "user-1", Email: "asha@example.com", Name: "Asha"}

// withUser attaches the test user the way the Authenticate middleware does.
func withUser(req *http.Request) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), testUser))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// MockProductService is a mock implementation of ProductService.
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductService) CartLine(ctx context.Context, id string) (model.CartItem, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.CartItem), args.Error(1)
}

// MockCartService is a mock implementation of CartService.
type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) Get(ctx context.Context, owner string) (model.CartView, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(model.CartView), args.Error(1)
}

func (m *MockCartService) Items(ctx context.Context, owner string) ([]model.CartItem, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CartItem), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, owner string, req *model.AddCartItemRequest) (model.CartView, error) {
	args := m.Called(ctx, owner, req)
	return args.Get(0).(model.CartView), args.Error(1)
}

func (m *MockCartService) SetQuantity(ctx context.Context, owner, productID string, qty int) (model.CartView, error) {
	args := m.Called(ctx, owner, productID, qty)
	return args.Get(0).(model.CartView), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, owner, productID string) (model.CartView, error) {
	args := m.Called(ctx, owner, productID)
	return args.Get(0).(model.CartView), args.Error(1)
}

func (m *MockCartService) Clear(ctx context.Context, owner string) (model.CartView, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(model.CartView), args.Error(1)
}

// MockCheckoutService is a mock implementation of CheckoutService.
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Quote(ctx context.Context, user auth.User, req *model.QuoteRequest) (*model.QuoteResponse, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QuoteResponse), args.Error(1)
}

func (m *MockCheckoutService) CreateIntent(ctx context.Context, user auth.User, req *model.CheckoutRequest) (*model.CheckoutIntent, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutIntent), args.Error(1)
}

func (m *MockCheckoutService) RetryGatewayOrder(ctx context.Context, user auth.User, provisionalID uuid.UUID, mode model.PaymentMode) (*model.CheckoutIntent, error) {
	args := m.Called(ctx, user, provisionalID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutIntent), args.Error(1)
}

func (m *MockCheckoutService) GetIntent(ctx context.Context, user auth.User, provisionalID uuid.UUID) (*model.CheckoutIntent, error) {
	args := m.Called(ctx, user, provisionalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutIntent), args.Error(1)
}

func (m *MockCheckoutService) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]model.ProvisionalOrder, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProvisionalOrder), args.Error(1)
}

// MockReconciliationService is a mock implementation of ReconciliationService.
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) ConfirmEmbedded(ctx context.Context, user auth.User, req *model.ConfirmEmbeddedRequest) (*model.ConfirmationResult, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmationResult), args.Error(1)
}

func (m *MockReconciliationService) ConfirmPaymentLink(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmationResult), args.Error(1)
}

func (m *MockReconciliationService) ConfirmManual(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
	args := m.Called(ctx, user, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmationResult), args.Error(1)
}

func (m *MockReconciliationService) GetOrder(ctx context.Context, user auth.User, orderID uuid.UUID) (*model.ConfirmedOrder, error) {
	args := m.Called(ctx, user, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmedOrder), args.Error(1)
}
