package service

import (
	"context"

	"storefront/internal/cart"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// cartService implements CartService on top of cart.Store.
type cartService struct {
	persister cart.Persister
	products  ProductService
	logger    zerolog.Logger
}

// NewCartService creates a new cart service. Lines are priced from products at add time.
func NewCartService(persister cart.Persister, products ProductService, logger zerolog.Logger) CartService {
	return &cartService{
		persister: persister,
		products:  products,
		logger:    logger.With().Str("service", "cart").Logger(),
	}
}

func (s *cartService) open(ctx context.Context, owner string) *cart.Store {
	return cart.Open(ctx, owner, s.persister, s.logger)
}

func (s *cartService) Get(ctx context.Context, owner string) (model.CartView, error) {
	return s.open(ctx, owner).Cart().View(), nil
}

func (s *cartService) Items(ctx context.Context, owner string) ([]model.CartItem, error) {
	return s.open(ctx, owner).Cart().Items, nil
}

func (s *cartService) AddItem(ctx context.Context, owner string, req *model.AddCartItemRequest) (model.CartView, error) {
	if req == nil || req.ProductID == "" {
		return model.CartView{}, model.ErrProductNotFound
	}

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		s.logger.Warn().Str("product_id", req.ProductID).Int("quantity", qty).Msg("invalid quantity")
		return model.CartView{}, model.ErrInvalidQuantity
	}

	item, err := s.products.CartLine(ctx, req.ProductID)
	if err != nil {
		return model.CartView{}, err
	}

	c, err := s.open(ctx, owner).Add(ctx, item, qty)
	if err != nil {
		return model.CartView{}, err
	}

	s.logger.Debug().
		Str("product_id", item.ProductID).
		Int("quantity", qty).
		Int("item_count", c.ItemCount).
		Msg("item added to cart")

	return c.View(), nil
}

func (s *cartService) SetQuantity(ctx context.Context, owner, productID string, qty int) (model.CartView, error) {
	c, err := s.open(ctx, owner).SetQuantity(ctx, productID, qty)
	if err != nil {
		return model.CartView{}, err
	}
	return c.View(), nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner, productID string) (model.CartView, error) {
	c, err := s.open(ctx, owner).Remove(ctx, productID)
	if err != nil {
		return model.CartView{}, err
	}
	return c.View(), nil
}

func (s *cartService) Clear(ctx context.Context, owner string) (model.CartView, error) {
	c, err := s.open(ctx, owner).Clear(ctx)
	if err != nil {
		return model.CartView{}, err
	}
	return c.View(), nil
}
