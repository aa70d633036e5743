package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const pgUniqueViolation = "23505"

const provisionalColumns = `id, user_id, order_number, status, payment_mode, total_amount,
	breakdown, items_snapshot, delivery_address, external_payment_ref, snapshot_fingerprint, created_at, updated_at`

const confirmedColumns = `id, provisional_order_id, user_id, order_number, status, payment_status, total_amount,
	breakdown, items_snapshot, delivery_address, external_payment_ref, external_payment_id,
	confirmation_tier, confirmed_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateProvisional inserts a pending provisional order.
func (r *orderRepository) CreateProvisional(ctx context.Context, o *model.ProvisionalOrder) error {
	breakdown, items, address, err := snapshots(o.Breakdown, o.Items, o.DeliveryAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO provisional_orders (` + provisionalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		o.ID, o.UserID, o.OrderNumber, o.Status, o.PaymentMode, o.TotalAmount,
		breakdown, items, address, o.ExternalPaymentRef, o.Fingerprint, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "provisional_orders_order_number_key") {
			r.logger.Warn().Str("order_number", o.OrderNumber).Msg("order number collision")
			return ErrDuplicateOrderNumber
		}
		r.logger.Error().
			Err(err).
			Str("order_number", o.OrderNumber).
			Msg("failed to create provisional order")
		return fmt.Errorf("failed to create provisional order: %w", err)
	}

	r.logger.Debug().
		Str("provisional_id", o.ID.String()).
		Str("order_number", o.OrderNumber).
		Msg("provisional order created successfully")

	return nil
}

// GetProvisional retrieves a provisional order owned by userID.
func (r *orderRepository) GetProvisional(ctx context.Context, id uuid.UUID, userID string) (*model.ProvisionalOrder, error) {
	query := `
		SELECT ` + provisionalColumns + `
		FROM provisional_orders
		WHERE id = $1 AND user_id = $2
	`

	o, err := scanProvisional(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("provisional_id", id.String()).Msg("provisional order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("provisional_id", id.String()).Msg("failed to query provisional order")
		return nil, fmt.Errorf("failed to query provisional order: %w", err)
	}

	return o, nil
}

// FindReusablePlaceholder returns the newest pending order with the same snapshot that never reached the gateway.
func (r *orderRepository) FindReusablePlaceholder(ctx context.Context, userID, fingerprint string) (*model.ProvisionalOrder, error) {
	query := `
		SELECT ` + provisionalColumns + `
		FROM provisional_orders
		WHERE user_id = $1
		  AND status = 'pending'
		  AND starts_with(external_payment_ref, $2)
		  AND snapshot_fingerprint = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	if fingerprint == "" {
		return nil, nil
	}

	o, err := scanProvisional(r.pool.QueryRow(ctx, query, userID, model.PlaceholderRefPrefix, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to query reusable provisional order")
		return nil, fmt.Errorf("failed to query reusable provisional order: %w", err)
	}

	return o, nil
}

// SetExternalRef compares and swaps the payment reference of a pending order.
func (r *orderRepository) SetExternalRef(ctx context.Context, id uuid.UUID, expectedRef, ref string, mode model.PaymentMode) (bool, error) {
	query := `
		UPDATE provisional_orders
		SET external_payment_ref = $3, payment_mode = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND external_payment_ref = $2
	`

	tag, err := r.pool.Exec(ctx, query, id, expectedRef, ref, mode)
	if err != nil {
		r.logger.Error().Err(err).Str("provisional_id", id.String()).Msg("failed to update payment reference")
		return false, fmt.Errorf("failed to update payment reference: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListPendingOlderThan lists stale pending provisional orders, oldest first.
func (r *orderRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.ProvisionalOrder, error) {
	query := `
		SELECT ` + provisionalColumns + `
		FROM provisional_orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		r.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to query pending orders")
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	orders := []model.ProvisionalOrder{}
	for rows.Next() {
		o, err := scanProvisional(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan provisional order row")
			return nil, fmt.Errorf("failed to scan provisional order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending orders: %w", err)
	}

	return orders, nil
}

// ClaimProvisional tombstones a pending order so it can be confirmed at most once.
// Concurrent claimers serialise on the row lock; all but one see no row.
func (r *orderRepository) ClaimProvisional(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string) (*model.ProvisionalOrder, error) {
	query := `
		UPDATE provisional_orders
		SET status = 'consumed', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + provisionalColumns

	o, err := scanProvisional(tx.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("provisional_id", id.String()).Msg("provisional order not claimable")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("provisional_id", id.String()).Msg("failed to claim provisional order")
		return nil, fmt.Errorf("failed to claim provisional order: %w", err)
	}

	return o, nil
}

// InsertConfirmed inserts a confirmed order within the provided transaction.
func (r *orderRepository) InsertConfirmed(ctx context.Context, tx pgx.Tx, o *model.ConfirmedOrder) error {
	breakdown, items, address, err := snapshots(o.Breakdown, o.Items, o.DeliveryAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + confirmedColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.Exec(ctx, query,
		o.ID, o.ProvisionalOrderID, o.UserID, o.OrderNumber, o.Status, o.PaymentStatus, o.TotalAmount,
		breakdown, items, address, o.ExternalPaymentRef, o.ExternalPaymentID,
		o.ConfirmationTier, o.ConfirmedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "orders_external_payment_id_key"):
			r.logger.Warn().Str("payment_id", o.ExternalPaymentID).Msg("payment id already recorded")
			return ErrDuplicatePaymentID
		case isUniqueViolation(err, "orders_provisional_order_id_key"), isUniqueViolation(err, "orders_order_number_key"):
			r.logger.Warn().Str("provisional_id", o.ProvisionalOrderID.String()).Msg("provisional order already confirmed")
			return ErrAlreadyConfirmed
		}
		r.logger.Error().
			Err(err).
			Str("order_id", o.ID.String()).
			Msg("failed to create confirmed order")
		return fmt.Errorf("failed to create confirmed order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", o.ID.String()).
		Msg("confirmed order created successfully")

	return nil
}

// InsertLineItems inserts multiple line items within the provided transaction.
func (r *orderRepository) InsertLineItems(ctx context.Context, tx pgx.Tx, items []model.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_line_items (id, order_id, product_id, seller_id, quantity, price, fulfillment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.SellerID, item.Quantity, item.Price, item.FulfillmentStatus)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("product_id", items[i].ProductID).
				Msg("failed to create order line item")
			return fmt.Errorf("failed to create order line item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order line items created successfully")

	return nil
}

// GetConfirmed retrieves a confirmed order by its ID along with its line items.
func (r *orderRepository) GetConfirmed(ctx context.Context, id uuid.UUID) (*model.ConfirmedOrder, error) {
	return r.getConfirmed(ctx, `WHERE id = $1`, id)
}

// GetConfirmedByProvisional retrieves the confirmed order created from provisionalID.
func (r *orderRepository) GetConfirmedByProvisional(ctx context.Context, provisionalID uuid.UUID) (*model.ConfirmedOrder, error) {
	return r.getConfirmed(ctx, `WHERE provisional_order_id = $1`, provisionalID)
}

func (r *orderRepository) getConfirmed(ctx context.Context, where string, id uuid.UUID) (*model.ConfirmedOrder, error) {
	query := `SELECT ` + confirmedColumns + ` FROM orders ` + where

	var o model.ConfirmedOrder
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.ProvisionalOrderID, &o.UserID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &o.TotalAmount,
		&o.Breakdown, &o.Items, &o.DeliveryAddress, &o.ExternalPaymentRef, &o.ExternalPaymentID,
		&o.ConfirmationTier, &o.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("id", id.String()).Msg("confirmed order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("id", id.String()).Msg("failed to query confirmed order")
		return nil, fmt.Errorf("failed to query confirmed order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, seller_id, quantity, price, fulfillment_status
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY product_id
	`

	rows, err := r.pool.Query(ctx, itemsQuery, o.ID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", o.ID.String()).
			Msg("failed to query order line items")
		return nil, fmt.Errorf("failed to query order line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderLineItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SellerID, &item.Quantity, &item.Price, &item.FulfillmentStatus)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order line item row")
			return nil, fmt.Errorf("failed to scan order line item: %w", err)
		}
		o.LineItems = append(o.LineItems, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order line item rows")
		return nil, fmt.Errorf("error iterating order line items: %w", err)
	}

	return &o, nil
}

func scanProvisional(row pgx.Row) (*model.ProvisionalOrder, error) {
	var o model.ProvisionalOrder
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.PaymentMode, &o.TotalAmount,
		&o.Breakdown, &o.Items, &o.DeliveryAddress, &o.ExternalPaymentRef, &o.Fingerprint, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// snapshots encodes the JSONB snapshot columns.
func snapshots(breakdown model.PriceBreakdown, items []model.CartItem, address model.DeliveryAddress) ([]byte, []byte, []byte, error) {
	b, err := json.Marshal(breakdown)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode breakdown: %w", err)
	}
	if items == nil {
		items = []model.CartItem{}
	}
	i, err := json.Marshal(items)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode items: %w", err)
	}
	a, err := json.Marshal(address)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode delivery address: %w", err)
	}
	return b, i, a, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
