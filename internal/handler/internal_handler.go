package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

const defaultPendingAge = 30 * time.Minute

// InternalHandler serves operator endpoints guarded by the API key.
type InternalHandler struct {
	checkout service.CheckoutService
	logger   zerolog.Logger
}

// NewInternalHandler creates a new internal handler.
func NewInternalHandler(checkout service.CheckoutService, logger zerolog.Logger) *InternalHandler {
	return &InternalHandler{
		checkout: checkout,
		logger:   logger.With().Str("handler", "internal").Logger(),
	}
}

// pendingResponse lists provisional orders awaiting reconciliation.
type pendingResponse struct {
	Orders []model.ProvisionalOrder `json:"orders"`
	Count  int                      `json:"count"`
}

// ListPending handles GET /internal/orders/pending?older_than=30m&limit=100.
func (h *InternalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	olderThan := defaultPendingAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidParameter, "invalid older_than parameter", h.logger)
			return
		}
		olderThan = d
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidParameter, "invalid limit parameter", h.logger)
			return
		}
		limit = n
	}

	orders, err := h.checkout.ListPending(r.Context(), olderThan, limit)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	if orders == nil {
		orders = []model.ProvisionalOrder{}
	}

	writeJSON(w, http.StatusOK, pendingResponse{Orders: orders, Count: len(orders)})
}
