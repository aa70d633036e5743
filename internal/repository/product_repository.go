package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = `id, name, price, category, seller_id, stock, created_at`

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// List retrieves a page of products matching filter, ordered by name.
func (r *productRepository) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1 = '' OR category = $1)
		  AND (NOT $2 OR stock > 0)
		ORDER BY name
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, filter.Category, filter.InStockOnly, filter.Limit, filter.Offset)
	if err != nil {
		r.logger.Error().Err(err).
			Str("category", filter.Category).
			Bool("in_stock_only", filter.InStockOnly).
			Int("limit", filter.Limit).
			Int("offset", filter.Offset).
			Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	return r.collect(rows)
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.SellerID, &p.Stock, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

func (r *productRepository) collect(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.SellerID, &p.Stock, &p.CreatedAt)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// ResolveSellers returns the current seller of record for each product.
func (r *productRepository) ResolveSellers(ctx context.Context, tx pgx.Tx, ids []string) (map[string]string, error) {
	sellers := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return sellers, nil
	}

	rows, err := tx.Query(ctx, `SELECT id, seller_id FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to resolve sellers")
		return nil, fmt.Errorf("failed to resolve sellers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID, sellerID string
		if err := rows.Scan(&productID, &sellerID); err != nil {
			return nil, fmt.Errorf("failed to scan seller: %w", err)
		}
		sellers[productID] = sellerID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sellers: %w", err)
	}

	for _, id := range ids {
		if _, ok := sellers[id]; !ok {
			r.logger.Warn().Str("product_id", id).Msg("product has no seller of record")
			return nil, model.ErrProductNotFound
		}
	}

	return sellers, nil
}

// DecrementStock takes each line's quantity off its product. The conditional update
// never lets stock go below zero; a line that cannot be satisfied fails the whole batch.
func (r *productRepository) DecrementStock(ctx context.Context, tx pgx.Tx, lines []model.OrderLineItem) error {
	if len(lines) == 0 {
		return nil
	}

	query := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`

	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(query, line.ProductID, line.Quantity)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(lines); i++ {
		tag, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("product_id", lines[i].ProductID).
				Msg("failed to decrement stock")
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			r.logger.Warn().
				Str("product_id", lines[i].ProductID).
				Int("quantity", lines[i].Quantity).
				Msg("insufficient stock")
			return model.ErrInsufficientStock
		}
	}

	return nil
}
