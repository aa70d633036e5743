package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/auth"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPaymentID = "pay_ABCDEFGH1234"

type reconciliationFixture struct {
	orders   *MockOrderRepository
	products *MockProductRepository
	outbox   *MockOutboxRepository
	gateway  *MockGateway
	locker   *MockLocker
	carts    *MockCartService
	tx       *MockTx
	service  ReconciliationService
}

func newReconciliationFixture() *reconciliationFixture {
	f := &reconciliationFixture{
		orders:   new(MockOrderRepository),
		products: new(MockProductRepository),
		outbox:   new(MockOutboxRepository),
		gateway:  new(MockGateway),
		locker:   new(MockLocker),
		carts:    new(MockCartService),
		tx:       new(MockTx),
	}
	f.service = NewReconciliationService(f.orders, f.products, f.outbox, f.gateway, f.locker, f.carts, metrics.New(), zerolog.Nop())
	return f
}

func pendingOrder(id uuid.UUID) *model.ProvisionalOrder {
	return &model.ProvisionalOrder{
		ID:                 id,
		UserID:             "user-1",
		OrderNumber:        "ORD-20250101000000-000001",
		Status:             model.OrderStatusPending,
		PaymentMode:        model.PaymentModeEmbedded,
		TotalAmount:        decimal.RequireFromString("601.8"),
		Items:              testItems(),
		DeliveryAddress:    testAddress(),
		ExternalPaymentRef: "order_123",
	}
}

// expectLock sets up a successful lock acquire and release for id.
func (f *reconciliationFixture) expectLock(id uuid.UUID) {
	f.locker.On("TryLock", mock.Anything, id.String()).Return("token-1", true, nil)
	f.locker.On("Release", mock.Anything, id.String(), "token-1").Return(nil)
}

// expectConfirmTx sets up a transaction that confirms claimed.
func (f *reconciliationFixture) expectConfirmTx(ctx context.Context, claimed *model.ProvisionalOrder) {
	f.orders.On("BeginTx", ctx).Return(f.tx, nil)
	f.orders.On("ClaimProvisional", ctx, f.tx, claimed.ID, "user-1").Return(claimed, nil)
	f.orders.On("InsertConfirmed", ctx, f.tx, mock.AnythingOfType("*model.ConfirmedOrder")).Return(nil)
	f.products.On("ResolveSellers", ctx, f.tx, []string{"P001"}).Return(map[string]string{"P001": "seller-9"}, nil)
	f.orders.On("InsertLineItems", ctx, f.tx, mock.AnythingOfType("[]model.OrderLineItem")).Return(nil)
	f.products.On("DecrementStock", ctx, f.tx, mock.AnythingOfType("[]model.OrderLineItem")).Return(nil)
	f.outbox.On("Insert", ctx, f.tx, mock.AnythingOfType("*model.OutboxEvent")).Return(nil)
	f.tx.On("Commit", ctx).Return(nil)
}

func TestReconciliationService_ConfirmEmbedded_Success(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()
	claimed := pendingOrder(id)

	f.orders.On("GetProvisional", ctx, id, "user-1").Return(pendingOrder(id), nil)
	f.gateway.On("VerifyPaymentSignature", "order_123", testPaymentID, "sig").Return(true)
	f.expectLock(id)
	f.expectConfirmTx(ctx, claimed)
	f.carts.On("Clear", ctx, "user-1").Return(model.CartView{}, nil)

	result, err := f.service.ConfirmEmbedded(ctx, testUser, &model.ConfirmEmbeddedRequest{
		ProvisionalID:  id,
		GatewayOrderID: "order_123",
		PaymentID:      testPaymentID,
		Signature:      "sig",
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.TierSignatureVerified, result.Tier)
	assert.True(t, result.Verified)
	assert.False(t, result.AlreadyConfirmed)

	order := result.Order
	assert.Equal(t, id, order.ProvisionalOrderID)
	assert.Equal(t, testPaymentID, order.ExternalPaymentID)
	assert.Equal(t, model.PaymentStatusCompleted, order.PaymentStatus)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "seller-9", order.LineItems[0].SellerID)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
	assert.Equal(t, order.ID, order.LineItems[0].OrderID)

	assert.True(t, f.tx.committed)
	assert.False(t, f.tx.rolledBack)
	f.orders.AssertExpectations(t)
	f.products.AssertExpectations(t)
	f.outbox.AssertExpectations(t)
	f.locker.AssertExpectations(t)
	f.carts.AssertExpectations(t)
}

func TestReconciliationService_ConfirmEmbedded_WritesOutboxEvent(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()

	f.orders.On("GetProvisional", ctx, id, "user-1").Return(pendingOrder(id), nil)
	f.gateway.On("VerifyPaymentSignature", "order_123", testPaymentID, "sig").Return(true)
	f.expectLock(id)
	f.expectConfirmTx(ctx, pendingOrder(id))
	f.carts.On("Clear", ctx, "user-1").Return(model.CartView{}, nil)

	result, err := f.service.ConfirmEmbedded(ctx, testUser, &model.ConfirmEmbeddedRequest{
		ProvisionalID: id, GatewayOrderID: "order_123", PaymentID: testPaymentID, Signature: "sig",
	})
	require.NoError(t, err)

	var event *model.OutboxEvent
	for _, call := range f.outbox.Calls {
		if call.Method == "Insert" {
			event = call.Arguments.Get(2).(*model.OutboxEvent)
		}
	}
	require.NotNil(t, event)
	assert.Equal(t, events.EventOrderConfirmed, event.EventType)
	assert.Equal(t, result.Order.ID.String(), event.AggregateID)

	var payload model.OrderConfirmedEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, result.Order.ID, payload.OrderID)
	assert.Equal(t, testPaymentID, payload.PaymentID)
	assert.Len(t, payload.LineItems, 1)
}

func TestReconciliationService_ConfirmEmbedded_VerificationFailures(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	tests := []struct {
		name           string
		gatewayOrderID string
		signatureOK    bool
	}{
		{name: "Bad signature", gatewayOrderID: "order_123", signatureOK: false},
		{name: "Gateway order of another intent", gatewayOrderID: "order_999", signatureOK: true},
		{name: "Missing gateway order", gatewayOrderID: "", signatureOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconciliationFixture()
			f.orders.On("GetProvisional", ctx, id, "user-1").Return(pendingOrder(id), nil)
			f.gateway.On("VerifyPaymentSignature", mock.Anything, mock.Anything, mock.Anything).Return(tt.signatureOK)

			result, err := f.service.ConfirmEmbedded(ctx, testUser, &model.ConfirmEmbeddedRequest{
				ProvisionalID:  id,
				GatewayOrderID: tt.gatewayOrderID,
				PaymentID:      testPaymentID,
				Signature:      "sig",
			})

			assert.ErrorIs(t, err, model.ErrPaymentVerificationFailed)
			assert.Nil(t, result)
			f.orders.AssertNotCalled(t, "BeginTx", mock.Anything)
			f.locker.AssertNotCalled(t, "TryLock", mock.Anything, mock.Anything)
		})
	}
}

func TestReconciliationService_PaymentIDValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		paymentID   string
		expectedErr error
	}{
		{name: "Missing", paymentID: "", expectedErr: model.ErrMissingPaymentID},
		{name: "Wrong prefix", paymentID: "order_ABCDEFGH12", expectedErr: model.ErrInvalidPaymentID},
		{name: "Too short", paymentID: "pay_abc", expectedErr: model.ErrInvalidPaymentID},
		{name: "Bad characters", paymentID: "pay_ABCD-EFGH-12", expectedErr: model.ErrInvalidPaymentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconciliationFixture()
			req := &model.ConfirmPaymentRequest{ProvisionalID: uuid.New(), PaymentID: tt.paymentID}

			_, err := f.service.ConfirmManual(ctx, testUser, req)
			assert.ErrorIs(t, err, tt.expectedErr)

			_, err = f.service.ConfirmPaymentLink(ctx, testUser, req)
			assert.ErrorIs(t, err, tt.expectedErr)

			f.locker.AssertNotCalled(t, "TryLock", mock.Anything, mock.Anything)
			f.orders.AssertNotCalled(t, "BeginTx", mock.Anything)
		})
	}
}

func TestReconciliationService_UnverifiedTiers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		confirm func(ReconciliationService, *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error)
		tier    model.ConfirmationTier
	}{
		{
			name: "Payment link return",
			confirm: func(s ReconciliationService, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
				return s.ConfirmPaymentLink(ctx, testUser, req)
			},
			tier: model.TierUnverifiedPaymentLink,
		},
		{
			name: "Manual entry",
			confirm: func(s ReconciliationService, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
				return s.ConfirmManual(ctx, testUser, req)
			},
			tier: model.TierUnverifiedManual,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			f := newReconciliationFixture()
			f.expectLock(id)
			f.expectConfirmTx(ctx, pendingOrder(id))
			f.carts.On("Clear", ctx, "user-1").Return(model.CartView{}, nil)

			result, err := tt.confirm(f.service, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

			require.NoError(t, err)
			assert.Equal(t, tt.tier, result.Tier)
			assert.False(t, result.Verified)
			assert.Equal(t, tt.tier, result.Order.ConfirmationTier)
			f.gateway.AssertNotCalled(t, "VerifyPaymentSignature", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReconciliationService_ConfirmationInProgress(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()
	f.locker.On("TryLock", ctx, id.String()).Return("", false, nil)

	result, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

	assert.ErrorIs(t, err, model.ErrConfirmationInProgress)
	assert.Nil(t, result)
	f.orders.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestReconciliationService_LockUnavailableFallsBackToDatabase(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()
	f.locker.On("TryLock", ctx, id.String()).Return("", false, errors.New("redis down"))
	f.expectConfirmTx(ctx, pendingOrder(id))
	f.carts.On("Clear", ctx, "user-1").Return(model.CartView{}, nil)

	result, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

	require.NoError(t, err)
	assert.NotNil(t, result.Order)
	f.locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciliationService_Replay(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	existing := &model.ConfirmedOrder{
		ID:                 uuid.New(),
		ProvisionalOrderID: id,
		UserID:             "user-1",
		ExternalPaymentID:  testPaymentID,
		ConfirmationTier:   model.TierUnverifiedManual,
	}

	setup := func() *reconciliationFixture {
		f := newReconciliationFixture()
		f.expectLock(id)
		f.orders.On("BeginTx", ctx).Return(f.tx, nil)
		f.orders.On("ClaimProvisional", ctx, f.tx, id, "user-1").Return(nil, nil)
		f.tx.On("Rollback", ctx).Return(nil)
		return f
	}

	t.Run("Same payment returns the existing order", func(t *testing.T) {
		f := setup()
		f.orders.On("GetConfirmedByProvisional", ctx, id).Return(existing, nil)

		result, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

		require.NoError(t, err)
		assert.True(t, result.AlreadyConfirmed)
		assert.Equal(t, existing.ID, result.Order.ID)
		assert.Equal(t, model.TierUnverifiedManual, result.Tier)
		assert.True(t, f.tx.rolledBack)
		f.orders.AssertNotCalled(t, "InsertConfirmed", mock.Anything, mock.Anything, mock.Anything)
		f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
	})

	t.Run("Different payment is a conflict", func(t *testing.T) {
		f := setup()
		f.orders.On("GetConfirmedByProvisional", ctx, id).Return(existing, nil)

		_, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: "pay_ZZZZZZZZ9999"})

		assert.ErrorIs(t, err, model.ErrAlreadyConfirmed)
	})

	t.Run("Unknown order", func(t *testing.T) {
		f := setup()
		f.orders.On("GetConfirmedByProvisional", ctx, id).Return(nil, nil)

		_, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})

	t.Run("Order of another user", func(t *testing.T) {
		f := setup()
		other := *existing
		other.UserID = "user-2"
		f.orders.On("GetConfirmedByProvisional", ctx, id).Return(&other, nil)

		_, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})
}

func TestReconciliationService_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		setup       func(f *reconciliationFixture, claimed *model.ProvisionalOrder)
		expectedErr error
	}{
		{
			name: "Payment id used by another order",
			setup: func(f *reconciliationFixture, claimed *model.ProvisionalOrder) {
				f.orders.On("InsertConfirmed", ctx, f.tx, mock.Anything).Return(repository.ErrDuplicatePaymentID)
			},
			expectedErr: model.ErrPaymentAlreadyUsed,
		},
		{
			name: "Product removed since checkout",
			setup: func(f *reconciliationFixture, claimed *model.ProvisionalOrder) {
				f.orders.On("InsertConfirmed", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("ResolveSellers", ctx, f.tx, []string{"P001"}).Return(nil, model.ErrProductNotFound)
			},
			expectedErr: model.ErrPartialConfirmation,
		},
		{
			name: "Line items fail",
			setup: func(f *reconciliationFixture, claimed *model.ProvisionalOrder) {
				f.orders.On("InsertConfirmed", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("ResolveSellers", ctx, f.tx, []string{"P001"}).Return(map[string]string{"P001": "s"}, nil)
				f.orders.On("InsertLineItems", ctx, f.tx, mock.Anything).Return(errors.New("constraint"))
			},
			expectedErr: model.ErrPartialConfirmation,
		},
		{
			name: "Insufficient stock",
			setup: func(f *reconciliationFixture, claimed *model.ProvisionalOrder) {
				f.orders.On("InsertConfirmed", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("ResolveSellers", ctx, f.tx, []string{"P001"}).Return(map[string]string{"P001": "s"}, nil)
				f.orders.On("InsertLineItems", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("DecrementStock", ctx, f.tx, mock.Anything).Return(model.ErrInsufficientStock)
			},
			expectedErr: model.ErrInsufficientStock,
		},
		{
			name: "Outbox insert fails",
			setup: func(f *reconciliationFixture, claimed *model.ProvisionalOrder) {
				f.orders.On("InsertConfirmed", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("ResolveSellers", ctx, f.tx, []string{"P001"}).Return(map[string]string{"P001": "s"}, nil)
				f.orders.On("InsertLineItems", ctx, f.tx, mock.Anything).Return(nil)
				f.products.On("DecrementStock", ctx, f.tx, mock.Anything).Return(nil)
				f.outbox.On("Insert", ctx, f.tx, mock.Anything).Return(errors.New("disk full"))
			},
			expectedErr: model.ErrPartialConfirmation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			claimed := pendingOrder(id)
			f := newReconciliationFixture()
			f.expectLock(id)
			f.orders.On("BeginTx", ctx).Return(f.tx, nil)
			f.orders.On("ClaimProvisional", ctx, f.tx, id, "user-1").Return(claimed, nil)
			f.tx.On("Rollback", ctx).Return(nil)
			tt.setup(f, claimed)

			result, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, result)
			assert.True(t, f.tx.rolledBack)
			assert.False(t, f.tx.committed)
			f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
			f.locker.AssertExpectations(t)
		})
	}
}

func TestReconciliationService_BeginTxFails(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()
	f.expectLock(id)
	f.orders.On("BeginTx", ctx).Return(nil, errors.New("pool exhausted"))

	_, err := f.service.ConfirmManual(ctx, testUser, &model.ConfirmPaymentRequest{ProvisionalID: id, PaymentID: testPaymentID})

	assert.ErrorIs(t, err, model.ErrPartialConfirmation)
	de, ok := model.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindPartialConfirmation, de.Kind)
}

func TestReconciliationService_GetOrder(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	f := newReconciliationFixture()
	f.orders.On("GetConfirmed", ctx, id).Return(&model.ConfirmedOrder{ID: id, UserID: "user-1"}, nil)

	order, err := f.service.GetOrder(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, id, order.ID)

	_, err = f.service.GetOrder(ctx, auth.User{ID: "user-2"}, id)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	_, err = f.service.GetOrder(ctx, auth.User{}, id)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}
