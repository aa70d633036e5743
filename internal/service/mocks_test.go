package service

import (
	"context"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) ResolveSellers(ctx context.Context, tx pgx.Tx, ids []string) (map[string]string, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, tx pgx.Tx, lines []model.OrderLineItem) error {
	args := m.Called(ctx, tx, lines)
	return args.Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	// Return a MockTx interface value, not a pointer
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateProvisional(ctx context.Context, order *model.ProvisionalOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetProvisional(ctx context.Context, id uuid.UUID, userID string) (*model.ProvisionalOrder, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProvisionalOrder), args.Error(1)
}

func (m *MockOrderRepository) FindReusablePlaceholder(ctx context.Context, userID, fingerprint string) (*model.ProvisionalOrder, error) {
	args := m.Called(ctx, userID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProvisionalOrder), args.Error(1)
}

func (m *MockOrderRepository) SetExternalRef(ctx context.Context, id uuid.UUID, expectedRef, ref string, mode model.PaymentMode) (bool, error) {
	args := m.Called(ctx, id, expectedRef, ref, mode)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.ProvisionalOrder, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProvisionalOrder), args.Error(1)
}

func (m *MockOrderRepository) ClaimProvisional(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string) (*model.ProvisionalOrder, error) {
	args := m.Called(ctx, tx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProvisionalOrder), args.Error(1)
}

func (m *MockOrderRepository) InsertConfirmed(ctx context.Context, tx pgx.Tx, order *model.ConfirmedOrder) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) InsertLineItems(ctx context.Context, tx pgx.Tx, items []model.OrderLineItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) GetConfirmed(ctx context.Context, id uuid.UUID) (*model.ConfirmedOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmedOrder), args.Error(1)
}

func (m *MockOrderRepository) GetConfirmedByProvisional(ctx context.Context, provisionalID uuid.UUID) (*model.ConfirmedOrder, error) {
	args := m.Called(ctx, provisionalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConfirmedOrder), args.Error(1)
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Insert(ctx context.Context, tx pgx.Tx, event *model.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// MockGateway is a mock implementation of gateway.Client.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.OrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.OrderResponse), args.Error(1)
}

func (m *MockGateway) CreatePaymentLink(ctx context.Context, req gateway.PaymentLinkRequest) (*gateway.PaymentLinkResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentLinkResponse), args.Error(1)
}

func (m *MockGateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	args := m.Called(gatewayOrderID, paymentID, signature)
	return args.Bool(0)
}

func (m *MockGateway) KeyID() string    { return "rzp_test_key" }
func (m *MockGateway) Currency() string { return "INR" }

// MockLocker is a mock implementation of Locker.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockLocker) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
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

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }
