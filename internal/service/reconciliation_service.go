package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/auth"
	"storefront/internal/events"
	"storefront/internal/gateway"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// reconciliationService implements ReconciliationService.
type reconciliationService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	outboxRepo  repository.OutboxRepository
	gateway     gateway.Client
	locker      Locker
	carts       CartService
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReconciliationService creates a new reconciliation service.
// carts may be nil, in which case the cart is left alone after confirmation.
func NewReconciliationService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	outboxRepo repository.OutboxRepository,
	gw gateway.Client,
	locker Locker,
	carts CartService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) ReconciliationService {
	return &reconciliationService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		gateway:     gw,
		locker:      locker,
		carts:       carts,
		metrics:     m,
		logger:      logger.With().Str("service", "reconciliation").Logger(),
		now:         time.Now,
	}
}

// ConfirmEmbedded confirms an embedded checkout after verifying the provider signature.
func (s *reconciliationService) ConfirmEmbedded(ctx context.Context, user auth.User, req *model.ConfirmEmbeddedRequest) (*model.ConfirmationResult, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	if req == nil {
		return nil, model.ErrMissingPaymentID
	}
	if err := validatePaymentID(req.PaymentID); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetProvisional(ctx, req.ProvisionalID, user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("provisional_id", req.ProvisionalID.String()).Msg("failed to get provisional order")
		return nil, fmt.Errorf("failed to get provisional order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if req.GatewayOrderID == "" || order.ExternalPaymentRef != req.GatewayOrderID ||
		!s.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		s.metrics.Confirmation(string(model.TierSignatureVerified), metrics.OutcomeFailure)
		s.logger.Warn().
			Str("provisional_id", order.ID.String()).
			Str("gateway_order_id", req.GatewayOrderID).
			Str("payment_id", req.PaymentID).
			Msg("payment signature verification failed")
		return nil, model.ErrPaymentVerificationFailed
	}

	return s.confirm(ctx, model.Confirmation{
		ProvisionalID: req.ProvisionalID,
		UserID:        user.ID,
		PaymentID:     req.PaymentID,
		Tier:          model.TierSignatureVerified,
	})
}

// ConfirmPaymentLink confirms an order on return from a hosted payment link.
// Only the identifier's syntax is checked.
func (s *reconciliationService) ConfirmPaymentLink(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
	return s.confirmUnverified(ctx, user, req, model.TierUnverifiedPaymentLink)
}

// ConfirmManual confirms an order from a payment id the user pasted in.
// Only the identifier's syntax is checked.
func (s *reconciliationService) ConfirmManual(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error) {
	return s.confirmUnverified(ctx, user, req, model.TierUnverifiedManual)
}

func (s *reconciliationService) confirmUnverified(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest, tier model.ConfirmationTier) (*model.ConfirmationResult, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}
	if req == nil {
		return nil, model.ErrMissingPaymentID
	}
	if err := validatePaymentID(req.PaymentID); err != nil {
		return nil, err
	}

	return s.confirm(ctx, model.Confirmation{
		ProvisionalID: req.ProvisionalID,
		UserID:        user.ID,
		PaymentID:     req.PaymentID,
		Tier:          tier,
	})
}

// confirm serialises attempts on the provisional order and runs the confirm transaction.
func (s *reconciliationService) confirm(ctx context.Context, c model.Confirmation) (*model.ConfirmationResult, error) {
	key := c.ProvisionalID.String()

	token, locked, err := s.locker.TryLock(ctx, key)
	switch {
	case err != nil:
		// The database still guarantees at-most-once; only the fast path is lost.
		s.logger.Warn().Err(err).Str("provisional_id", key).Msg("confirm lock unavailable, continuing")
	case !locked:
		s.metrics.Confirmation(string(c.Tier), metrics.OutcomeFailure)
		return nil, model.ErrConfirmationInProgress
	default:
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.Warn().Err(err).Str("provisional_id", key).Msg("failed to release confirm lock")
			}
		}()
	}

	order, replay, err := s.confirmTx(ctx, c)
	if err != nil {
		s.metrics.Confirmation(string(c.Tier), metrics.OutcomeFailure)
		return nil, err
	}
	if replay {
		return s.replay(ctx, c)
	}

	s.metrics.Confirmation(string(c.Tier), metrics.OutcomeSuccess)

	event := s.logger.Info()
	if !c.Tier.Verified() {
		event = s.logger.Warn()
	}
	event.
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("payment_id", c.PaymentID).
		Str("tier", string(c.Tier)).
		Bool("verified", c.Tier.Verified()).
		Msg("order confirmed")

	if s.carts != nil {
		if _, err := s.carts.Clear(ctx, c.UserID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to clear cart after confirmation")
		}
	}

	return &model.ConfirmationResult{
		Order:    order,
		Tier:     c.Tier,
		Verified: c.Tier.Verified(),
	}, nil
}

// confirmTx claims the provisional order and writes everything a confirmed order needs in
// one transaction. replay is true when there was no pending order to claim.
func (s *reconciliationService) confirmTx(ctx context.Context, c model.Confirmation) (order *model.ConfirmedOrder, replay bool, err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
	}()

	claimed, err := s.orderRepo.ClaimProvisional(ctx, tx, c.ProvisionalID, c.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}
	if claimed == nil {
		return nil, true, nil
	}

	order = &model.ConfirmedOrder{
		ID:                 uuid.New(),
		ProvisionalOrderID: claimed.ID,
		UserID:             claimed.UserID,
		OrderNumber:        claimed.OrderNumber,
		Status:             model.OrderStatusConfirmed,
		PaymentStatus:      model.PaymentStatusCompleted,
		TotalAmount:        claimed.TotalAmount,
		Breakdown:          claimed.Breakdown,
		Items:              claimed.Items,
		DeliveryAddress:    claimed.DeliveryAddress,
		ExternalPaymentRef: claimed.ExternalPaymentRef,
		ExternalPaymentID:  c.PaymentID,
		ConfirmationTier:   c.Tier,
		ConfirmedAt:        s.now().UTC(),
	}

	if err = s.orderRepo.InsertConfirmed(ctx, tx, order); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicatePaymentID):
			return nil, false, model.ErrPaymentAlreadyUsed
		case errors.Is(err, repository.ErrAlreadyConfirmed):
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	productIDs := make([]string, len(claimed.Items))
	for i, item := range claimed.Items {
		productIDs[i] = item.ProductID
	}

	sellers, err := s.productRepo.ResolveSellers(ctx, tx, productIDs)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	lineItems := make([]model.OrderLineItem, len(claimed.Items))
	for i, item := range claimed.Items {
		lineItems[i] = model.OrderLineItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductID:         item.ProductID,
			SellerID:          sellers[item.ProductID],
			Quantity:          item.Quantity,
			Price:             item.UnitPrice,
			FulfillmentStatus: model.FulfillmentPending,
		}
	}

	if err = s.orderRepo.InsertLineItems(ctx, tx, lineItems); err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	if err = s.productRepo.DecrementStock(ctx, tx, lineItems); err != nil {
		if errors.Is(err, model.ErrInsufficientStock) {
			s.logger.Warn().Str("provisional_id", claimed.ID.String()).Msg("insufficient stock, confirmation rolled back")
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	payload, err := json.Marshal(model.OrderConfirmedEvent{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		TotalAmount:      order.TotalAmount,
		PaymentID:        order.ExternalPaymentID,
		ConfirmationTier: order.ConfirmationTier,
		LineItems:        lineItems,
		ConfirmedAt:      order.ConfirmedAt,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode order event: %w", err)
	}

	err = s.outboxRepo.Insert(ctx, tx, &model.OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   events.EventOrderConfirmed,
		Payload:     payload,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, false, fmt.Errorf("%w: %w", model.ErrPartialConfirmation, err)
	}
	committed = true

	order.LineItems = lineItems
	return order, false, nil
}

// replay answers a confirmation for an order that is no longer pending.
func (s *reconciliationService) replay(ctx context.Context, c model.Confirmation) (*model.ConfirmationResult, error) {
	existing, err := s.orderRepo.GetConfirmedByProvisional(ctx, c.ProvisionalID)
	if err != nil {
		s.metrics.Confirmation(string(c.Tier), metrics.OutcomeFailure)
		return nil, fmt.Errorf("failed to get confirmed order: %w", err)
	}
	if existing == nil || existing.UserID != c.UserID {
		s.metrics.Confirmation(string(c.Tier), metrics.OutcomeFailure)
		return nil, model.ErrOrderNotFound
	}

	if existing.ExternalPaymentID != c.PaymentID {
		s.metrics.Confirmation(string(c.Tier), metrics.OutcomeFailure)
		s.logger.Warn().
			Str("order_id", existing.ID.String()).
			Str("payment_id", c.PaymentID).
			Msg("order already confirmed with a different payment")
		return nil, model.ErrAlreadyConfirmed
	}

	s.metrics.Confirmation(string(existing.ConfirmationTier), metrics.OutcomeReplay)
	s.logger.Debug().Str("order_id", existing.ID.String()).Msg("confirmation replayed")

	return &model.ConfirmationResult{
		Order:            existing,
		Tier:             existing.ConfirmationTier,
		Verified:         existing.ConfirmationTier.Verified(),
		AlreadyConfirmed: true,
	}, nil
}

// GetOrder retrieves a confirmed order owned by the user.
func (s *reconciliationService) GetOrder(ctx context.Context, user auth.User, orderID uuid.UUID) (*model.ConfirmedOrder, error) {
	if user.ID == "" {
		return nil, model.ErrUnauthenticated
	}

	order, err := s.orderRepo.GetConfirmed(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || order.UserID != user.ID {
		return nil, model.ErrOrderNotFound
	}

	return order, nil
}

func validatePaymentID(id string) error {
	if id == "" {
		return model.ErrMissingPaymentID
	}
	if !gateway.ValidPaymentID(id) {
		return model.ErrInvalidPaymentID
	}
	return nil
}
