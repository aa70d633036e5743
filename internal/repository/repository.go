package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrDuplicateOrderNumber is returned when a generated order number is already taken.
	ErrDuplicateOrderNumber = errors.New("order number already exists")

	// ErrDuplicatePaymentID is returned when a payment id is already attached to a confirmed order.
	ErrDuplicatePaymentID = errors.New("payment id already recorded")

	// ErrAlreadyConfirmed is returned when a provisional order already has a confirmed order.
	ErrAlreadyConfirmed = errors.New("provisional order already confirmed")
)

// ProductRepository defines the interface for product data access operations.
type ProductRepository interface {
	// List retrieves a page of products matching filter, ordered by name.
	List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error)

	// GetByID retrieves a single product by its ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// ResolveSellers returns the current seller of record for each product, read inside tx.
	// Returns model.ErrProductNotFound if any product is missing.
	ResolveSellers(ctx context.Context, tx pgx.Tx, ids []string) (map[string]string, error)

	// DecrementStock atomically takes quantity off each line's product inside tx.
	// Returns model.ErrInsufficientStock if any product has too little stock.
	DecrementStock(ctx context.Context, tx pgx.Tx, lines []model.OrderLineItem) error
}

// OrderRepository defines the interface for provisional and confirmed order storage.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateProvisional inserts a pending provisional order.
	// Returns ErrDuplicateOrderNumber when the order number is taken.
	CreateProvisional(ctx context.Context, order *model.ProvisionalOrder) error

	// GetProvisional retrieves a provisional order owned by userID.
	GetProvisional(ctx context.Context, id uuid.UUID, userID string) (*model.ProvisionalOrder, error)

	// FindReusablePlaceholder returns the newest pending order of userID that still carries a
	// placeholder payment reference and was built from the same snapshot fingerprint.
	FindReusablePlaceholder(ctx context.Context, userID, fingerprint string) (*model.ProvisionalOrder, error)

	// SetExternalRef replaces the payment reference of a pending order if it still equals
	// expectedRef. Reports false when the order moved on in the meantime.
	SetExternalRef(ctx context.Context, id uuid.UUID, expectedRef, ref string, mode model.PaymentMode) (bool, error)

	// ListPendingOlderThan lists pending provisional orders created before cutoff, oldest first.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.ProvisionalOrder, error)

	// ClaimProvisional moves a pending order owned by userID to consumed inside tx.
	// Returns nil when the order is missing, owned by someone else or not pending.
	ClaimProvisional(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string) (*model.ProvisionalOrder, error)

	// InsertConfirmed inserts a confirmed order inside tx.
	InsertConfirmed(ctx context.Context, tx pgx.Tx, order *model.ConfirmedOrder) error

	// InsertLineItems inserts the order's line items inside tx.
	InsertLineItems(ctx context.Context, tx pgx.Tx, items []model.OrderLineItem) error

	// GetConfirmed retrieves a confirmed order with its line items.
	GetConfirmed(ctx context.Context, id uuid.UUID) (*model.ConfirmedOrder, error)

	// GetConfirmedByProvisional retrieves the confirmed order created from a provisional order.
	GetConfirmedByProvisional(ctx context.Context, provisionalID uuid.UUID) (*model.ConfirmedOrder, error)
}

// OutboxRepository stores events for asynchronous publication.
type OutboxRepository interface {
	// Insert appends an event inside tx.
	Insert(ctx context.Context, tx pgx.Tx, event *model.OutboxEvent) error

	// GetUnpublished returns up to limit unpublished events in insertion order.
	GetUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error)

	// MarkPublished stamps the given events as published.
	MarkPublished(ctx context.Context, ids []int64) error
}
