package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

const (
	defaultProductLimit = 10
	maxProductLimit     = 100
)

// productService implements ProductService.
type productService struct {
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(productRepo repository.ProductRepository, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// List returns one page of the catalogue. Limits are clamped to [1, 100].
func (s *productService) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultProductLimit
	case filter.Limit > maxProductLimit:
		filter.Limit = maxProductLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Category = strings.TrimSpace(filter.Category)

	products, err := s.productRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).
			Str("category", filter.Category).
			Int("limit", filter.Limit).
			Int("offset", filter.Offset).
			Msg("failed to list products")
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	s.logger.Debug().
		Int("count", len(products)).
		Str("category", filter.Category).
		Bool("in_stock_only", filter.InStockOnly).
		Msg("listed products")

	return products, nil
}

// Get retrieves a single product.
func (s *productService) Get(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		return nil, model.ErrProductNotFound
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("failed to get product")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		s.logger.Debug().Str("product_id", id).Msg("product not found")
		return nil, model.ErrProductNotFound
	}

	return product, nil
}

// CartLine projects the current product record onto a cart line with no quantity.
// The stock ceiling is the live stock, so a sold-out product yields a ceiling of 0.
func (s *productService) CartLine(ctx context.Context, id string) (model.CartItem, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return model.CartItem{}, err
	}

	if !product.InStock() {
		s.logger.Debug().Str("product_id", id).Msg("product is sold out")
	}

	return model.CartItem{
		ProductID:    product.ID,
		Title:        product.Name,
		UnitPrice:    product.Price,
		StockCeiling: product.Stock,
	}, nil
}
