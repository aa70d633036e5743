package handler

import (
	"context"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

// PaymentHandler reports completed payments for reconciliation.
type PaymentHandler struct {
	service service.ReconciliationService
	logger  zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(service service.ReconciliationService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger.With().Str("handler", "payment").Logger(),
	}
}

// ConfirmEmbedded handles POST /api/payments/confirm/embedded.
func (h *PaymentHandler) ConfirmEmbedded(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req model.ConfirmEmbeddedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	result, err := h.service.ConfirmEmbedded(r.Context(), user, &req)
	h.respond(w, r, result, err)
}

// ConfirmPaymentLink handles POST /api/payments/confirm/payment-link.
func (h *PaymentHandler) ConfirmPaymentLink(w http.ResponseWriter, r *http.Request) {
	h.confirmPayment(w, r, h.service.ConfirmPaymentLink)
}

// ConfirmManual handles POST /api/payments/confirm/manual.
func (h *PaymentHandler) ConfirmManual(w http.ResponseWriter, r *http.Request) {
	h.confirmPayment(w, r, h.service.ConfirmManual)
}

type confirmFunc func(ctx context.Context, user auth.User, req *model.ConfirmPaymentRequest) (*model.ConfirmationResult, error)

func (h *PaymentHandler) confirmPayment(w http.ResponseWriter, r *http.Request, confirm confirmFunc) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req model.ConfirmPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	result, err := confirm(r.Context(), user, &req)
	h.respond(w, r, result, err)
}

// respond writes 201 for a new confirmation and 200 for a replay.
func (h *PaymentHandler) respond(w http.ResponseWriter, r *http.Request, result *model.ConfirmationResult, err error) {
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if result.AlreadyConfirmed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
