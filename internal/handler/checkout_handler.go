package handler

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckoutHandler prices carts and manages order intents.
type CheckoutHandler struct {
	service service.CheckoutService
	logger  zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(service service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger.With().Str("handler", "checkout").Logger(),
	}
}

// Quote handles POST /api/checkout/quote. An empty body prices the cart without a coupon.
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req model.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	quote, err := h.service.Quote(r.Context(), user, &req)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// CreateIntent handles POST /api/checkout/intents.
func (h *CheckoutHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), user, &req)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if intent.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, intent)
}

// GetIntent handles GET /api/checkout/intents/{id}.
func (h *CheckoutHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	intent, err := h.service.GetIntent(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, intent)
}

// RetryIntent handles POST /api/checkout/intents/{id}/retry.
func (h *CheckoutHandler) RetryIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req model.RetryIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	intent, err := h.service.RetryGatewayOrder(r.Context(), user, id, req.Mode)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, intent)
}

func (h *CheckoutHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, model.ErrOrderNotFound, h.logger)
		return uuid.Nil, false
	}
	return id, true
}
