package service

import (
	"context"
	"time"

	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/google/uuid"
)

// ProductService serves the catalogue and the product lookups carts are built from.
type ProductService interface {
	// List returns one page of products matching filter.
	List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error)

	// Get retrieves a single product. Returns model.ErrProductNotFound when it does not exist.
	Get(ctx context.Context, id string) (*model.Product, error)

	// CartLine returns the cart line for a product with its current title, price and stock ceiling.
	CartLine(ctx context.Context, id string) (model.CartItem, error)
}

// CartService manages the server-side cart of an owner.
type CartService interface {
	Get(ctx context.Context, owner string) (model.CartView, error)

	// Items returns the raw cart lines, used for pricing and order snapshots.
	Items(ctx context.Context, owner string) ([]model.CartItem, error)

	// AddItem adds a product, refreshing its title, price and stock ceiling from the catalogue.
	AddItem(ctx context.Context, owner string, req *model.AddCartItemRequest) (model.CartView, error)

	SetQuantity(ctx context.Context, owner, productID string, qty int) (model.CartView, error)
	RemoveItem(ctx context.Context, owner, productID string) (model.CartView, error)
	Clear(ctx context.Context, owner string) (model.CartView, error)
}

// CheckoutService prices carts and creates order intents.
type CheckoutService interface {
	// Quote prices the user's current cart without writing anything.
	Quote(ctx context.Context, user auth.User, req *model.QuoteRequest) (*model.QuoteResponse, error)

	// CreateIntent records a provisional order and starts the payment hand-off.
	CreateIntent(ctx context.Context, user auth.User, req *model.CheckoutRequest) (*model.CheckoutIntent, error)

	// RetryGatewayOrder re-attempts the payment hand-off of a pending provisional order.
	RetryGatewayOrder(ctx context.Context, user auth.User, provisionalID uuid.UUID, mode model.PaymentMode) (*model.CheckoutIntent, error)

	// GetIntent reads a provisional order owned by the user.
	GetIntent(ctx context.Context, user auth.User, provisionalID uuid.UUID) (*model.CheckoutIntent, error)

	// ListPending lists provisional orders still pending after olderThan.
	ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]model.ProvisionalOrder, error)
}

// ReconciliationService turns a provisional order into a confirmed order once payment is reported.
type ReconciliationService interface {
	ConfirmEmbedded(ctx context.Context, user auth.User, req *model.ConfirmEmbeddedRequest) (*model.ConfirmationResult, error)
	ConfirmPaymentLink(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error)
	ConfirmManual(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error)

	// GetOrder retrieves a confirmed order with its line items.
	GetOrder(ctx context.Context, user auth.User, orderID uuid.UUID) (*model.ConfirmedOrder, error)
}

// Locker guards a key across processes. ok is false when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}
