package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/gateway"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxOrderNumberAttempts = 3
	defaultPendingLimit    = 100
	maxPendingLimit        = 500
)

// checkoutService implements CheckoutService.
type checkoutService struct {
	carts       CartService
	orderRepo   repository.OrderRepository
	engine      *pricing.Engine
	gateway     gateway.Client
	metrics     *metrics.Metrics
	callbackURL string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	carts CartService,
	orderRepo repository.OrderRepository,
	engine *pricing.Engine,
	gw gateway.Client,
	m *metrics.Metrics,
	callbackURL string,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		carts:       carts,
		orderRepo:   orderRepo,
		engine:      engine,
		gateway:     gw,
		metrics:     m,
		callbackURL: callbackURL,
		logger:      logger.With().Str("service", "checkout").Logger(),
		now:         time.Now,
	}
}

// Quote prices the user's current cart.
func (s *checkoutService) Quote(ctx context.Context, user auth.User, req *model.QuoteRequest) (*model.QuoteResponse, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}

	items, err := s.carts.Items(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	couponCode := ""
	if req != nil {
		couponCode = req.CouponCode
	}

	c := cart.New(items)
	return &model.QuoteResponse{
		Cart:      c.View(),
		Breakdown: s.engine.Calculate(c.Total, couponCode),
	}, nil
}

// CreateIntent validates the request, records a provisional order and hands it to the gateway.
func (s *checkoutService) CreateIntent(ctx context.Context, user auth.User, req *model.CheckoutRequest) (*model.CheckoutIntent, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	if req == nil {
		return nil, model.ErrInvalidAddress
	}

	items, err := s.carts.Items(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, model.ErrEmptyCart
	}
	if !req.DeliveryAddress.Complete() {
		return nil, model.ErrInvalidAddress
	}
	if !req.Mode.Valid() {
		return nil, model.ErrInvalidPaymentMode
	}

	c := cart.New(items)
	breakdown := s.engine.Calculate(c.Total, req.CouponCode)

	order, reused, err := s.provisionalOrder(ctx, user, c, breakdown, req)
	if err != nil {
		s.metrics.IntentCreated(string(req.Mode), metrics.OutcomeFailure)
		return nil, err
	}

	intent, err := s.handoff(ctx, user, order, req.Mode)
	if err != nil {
		s.metrics.IntentCreated(string(req.Mode), metrics.OutcomeFailure)
		return nil, err
	}
	intent.Reused = reused

	outcome := metrics.OutcomeSuccess
	if reused {
		outcome = metrics.OutcomeReused
	}
	s.metrics.IntentCreated(string(req.Mode), outcome)

	s.logger.Info().
		Str("provisional_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("mode", string(req.Mode)).
		Str("total", order.TotalAmount.String()).
		Bool("reused", reused).
		Msg("order intent created")

	return intent, nil
}

// provisionalOrder reuses a placeholder order built from the same items, address and prices,
// or inserts a new one.
func (s *checkoutService) provisionalOrder(
	ctx context.Context,
	user auth.User,
	c cart.Cart,
	breakdown model.PriceBreakdown,
	req *model.CheckoutRequest,
) (*model.ProvisionalOrder, bool, error) {
	fingerprint := model.SnapshotFingerprint(c.Items, req.DeliveryAddress, breakdown)

	existing, err := s.orderRepo.FindReusablePlaceholder(ctx, user.ID, fingerprint)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to look up reusable order")
		return nil, false, fmt.Errorf("%w: %w", model.ErrOrderCreationFailed, err)
	}
	if existing != nil {
		s.logger.Debug().
			Str("provisional_id", existing.ID.String()).
			Msg("reusing pending provisional order")
		return existing, true, nil
	}

	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		now := s.now().UTC()
		orderNumber := newOrderNumber(now)
		order := &model.ProvisionalOrder{
			ID:                 uuid.New(),
			UserID:             user.ID,
			OrderNumber:        orderNumber,
			Status:             model.OrderStatusPending,
			PaymentMode:        req.Mode,
			TotalAmount:        breakdown.Total,
			Breakdown:          breakdown,
			Items:              c.Items,
			DeliveryAddress:    req.DeliveryAddress,
			ExternalPaymentRef: model.PlaceholderRef(orderNumber),
			Fingerprint:        fingerprint,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		err = s.orderRepo.CreateProvisional(ctx, order)
		if err == nil {
			return order, false, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to create provisional order")
			return nil, false, fmt.Errorf("%w: %w", model.ErrOrderCreationFailed, err)
		}

		s.logger.Warn().
			Int("attempt", attempt).
			Str("order_number", orderNumber).
			Msg("order number collision, regenerating")
	}

	return nil, false, fmt.Errorf("%w: %w", model.ErrOrderCreationFailed, err)
}

// RetryGatewayOrder re-attempts the gateway hand-off for a pending provisional order.
func (s *checkoutService) RetryGatewayOrder(ctx context.Context, user auth.User, provisionalID uuid.UUID, mode model.PaymentMode) (*model.CheckoutIntent, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	if !mode.Valid() {
		return nil, model.ErrInvalidPaymentMode
	}

	order, err := s.orderRepo.GetProvisional(ctx, provisionalID, user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("provisional_id", provisionalID.String()).Msg("failed to get provisional order")
		return nil, fmt.Errorf("failed to get provisional order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.OrderStatusPending {
		return nil, model.ErrOrderNotPending
	}

	// A payment may already be in flight against the existing gateway order; replacing
	// it would make that payment fail the signature check.
	if mode == model.PaymentModeEmbedded && order.PaymentMode == model.PaymentModeEmbedded && !order.HasPlaceholderRef() {
		s.metrics.IntentCreated(string(mode), metrics.OutcomeReused)
		s.logger.Info().
			Str("provisional_id", order.ID.String()).
			Str("gateway_order_id", order.ExternalPaymentRef).
			Msg("gateway order already exists, retry returns it")

		intent := s.intentFor(user, order)
		intent.Reused = true
		return intent, nil
	}

	intent, err := s.handoff(ctx, user, order, mode)
	if err != nil {
		s.metrics.IntentCreated(string(mode), metrics.OutcomeFailure)
		return nil, err
	}
	s.metrics.IntentCreated(string(mode), metrics.OutcomeSuccess)

	s.logger.Info().
		Str("provisional_id", order.ID.String()).
		Str("mode", string(mode)).
		Msg("gateway hand-off retried")

	return intent, nil
}

// handoff creates the gateway artefact for mode and swaps it in for the order's current reference.
func (s *checkoutService) handoff(ctx context.Context, user auth.User, order *model.ProvisionalOrder, mode model.PaymentMode) (*model.CheckoutIntent, error) {
	expectedRef := order.ExternalPaymentRef
	amount := gateway.ToMinorUnits(order.TotalAmount)

	intent := &model.CheckoutIntent{
		ProvisionalID: order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		Mode:          mode,
		Breakdown:     order.Breakdown,
	}

	var ref string
	switch mode {
	case model.PaymentModeEmbedded:
		resp, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
			AmountMinor: amount,
			Currency:    s.gateway.Currency(),
			Receipt:     order.OrderNumber,
			Notes: map[string]string{
				"provisional_id": order.ID.String(),
				"user_id":        user.ID,
			},
		})
		if err != nil {
			return nil, s.pending(order, err)
		}
		ref = resp.ID
		intent.Checkout = &model.CheckoutOptions{
			KeyID:          s.gateway.KeyID(),
			AmountMinor:    amount,
			Currency:       s.gateway.Currency(),
			GatewayOrderID: resp.ID,
			OrderNumber:    order.OrderNumber,
			ProvisionalID:  order.ID,
			PrefillName:    user.Name,
			PrefillEmail:   user.Email,
		}

	case model.PaymentModePaymentLink:
		resp, err := s.gateway.CreatePaymentLink(ctx, gateway.PaymentLinkRequest{
			AmountMinor: amount,
			Currency:    s.gateway.Currency(),
			Description: "Payment for order " + order.OrderNumber,
			ReferenceID: order.OrderNumber,
			Customer: gateway.LinkCustomer{
				Name:    order.DeliveryAddress.Name,
				Email:   user.Email,
				Contact: order.DeliveryAddress.Phone,
			},
			Items:       linkItems(order.Items),
			Address:     linkAddress(order.DeliveryAddress),
			CallbackURL: s.callbackURL,
		})
		if err != nil {
			return nil, s.pending(order, err)
		}
		ref = resp.ID
		intent.PaymentLink = &model.PaymentLinkInfo{LinkID: resp.ID, URL: resp.ShortURL}

	default:
		return nil, model.ErrInvalidPaymentMode
	}

	swapped, err := s.orderRepo.SetExternalRef(ctx, order.ID, expectedRef, ref, mode)
	if err != nil {
		s.logger.Error().Err(err).Str("provisional_id", order.ID.String()).Msg("failed to record gateway reference")
		return nil, s.pending(order, err)
	}
	if !swapped {
		s.logger.Warn().
			Str("provisional_id", order.ID.String()).
			Str("gateway_ref", ref).
			Msg("provisional order changed during gateway hand-off")
		return nil, model.ErrConfirmationInProgress
	}

	intent.ExternalPaymentRef = ref
	return intent, nil
}

func (s *checkoutService) pending(order *model.ProvisionalOrder, err error) error {
	s.logger.Warn().
		Err(err).
		Str("provisional_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Msg("gateway hand-off failed, provisional order kept")
	return &model.GatewayPendingError{
		ProvisionalID: order.ID,
		OrderNumber:   order.OrderNumber,
		Err:           err,
	}
}

// GetIntent reads a provisional order owned by the user.
func (s *checkoutService) GetIntent(ctx context.Context, user auth.User, provisionalID uuid.UUID) (*model.CheckoutIntent, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}

	order, err := s.orderRepo.GetProvisional(ctx, provisionalID, user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("provisional_id", provisionalID.String()).Msg("failed to get provisional order")
		return nil, fmt.Errorf("failed to get provisional order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	return s.intentFor(user, order), nil
}

// intentFor describes a stored provisional order without calling the gateway.
func (s *checkoutService) intentFor(user auth.User, order *model.ProvisionalOrder) *model.CheckoutIntent {
	intent := &model.CheckoutIntent{
		ProvisionalID:      order.ID,
		OrderNumber:        order.OrderNumber,
		Status:             order.Status,
		Mode:               order.PaymentMode,
		Breakdown:          order.Breakdown,
		ExternalPaymentRef: order.ExternalPaymentRef,
	}
	if order.PaymentMode == model.PaymentModeEmbedded && !order.HasPlaceholderRef() {
		intent.Checkout = &model.CheckoutOptions{
			KeyID:          s.gateway.KeyID(),
			AmountMinor:    gateway.ToMinorUnits(order.TotalAmount),
			Currency:       s.gateway.Currency(),
			GatewayOrderID: order.ExternalPaymentRef,
			OrderNumber:    order.OrderNumber,
			ProvisionalID:  order.ID,
			PrefillName:    user.Name,
			PrefillEmail:   user.Email,
		}
	}

	return intent
}

// ListPending lists stale pending provisional orders. Nothing is expired automatically.
func (s *checkoutService) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]model.ProvisionalOrder, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	if olderThan < 0 {
		olderThan = 0
	}

	orders, err := s.orderRepo.ListPendingOlderThan(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		s.logger.Error().Err(err).Dur("older_than", olderThan).Msg("failed to list pending orders")
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}

	return orders, nil
}

// newOrderNumber formats ORD-<yyyymmddHHMMSS>-<6 random digits>.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102150405"), rand.IntN(1_000_000))
}

func linkItems(items []model.CartItem) []gateway.LinkItem {
	out := make([]gateway.LinkItem, 0, len(items))
	for _, item := range items {
		out = append(out, gateway.LinkItem{
			Name:        item.Title,
			Quantity:    item.Quantity,
			AmountMinor: gateway.ToMinorUnits(item.UnitPrice),
		})
	}
	return out
}

func linkAddress(a model.DeliveryAddress) gateway.LinkAddress {
	return gateway.LinkAddress{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
