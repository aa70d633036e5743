package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/middleware"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, logger zerolog.Logger) {
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("code", code).Str("error", message).Int("status", status).Msg("handler error")

	writeJSON(w, status, model.ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: middleware.RequestIDFromContext(r.Context()),
	})
}

// writeServiceError maps a service error to a status code and error body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	de, ok := model.AsDomainError(err)
	if !ok {
		logger.Error().Err(err).Msg("unhandled service error")
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error", logger)
		return
	}

	status := statusFor(de)
	resp := model.ErrorResponse{
		Error:         de.Code,
		Message:       de.Message,
		CorrelationID: middleware.RequestIDFromContext(r.Context()),
	}

	var pending *model.GatewayPendingError
	if errors.As(err, &pending) {
		resp.ProvisionalID = pending.ProvisionalID.String()
	}

	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("code", de.Code).Int("status", status).Msg("request failed")

	writeJSON(w, status, resp)
}

func statusFor(de *model.DomainError) int {
	switch de.Kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindUpstream:
		if de == model.ErrGatewayOrderPending {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case model.KindVerification:
		return http.StatusPaymentRequired
	case model.KindConflict:
		return http.StatusConflict
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindPartialConfirmation:
		if de == model.ErrInsufficientStock {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		writeServiceError(w, r, model.ErrUnauthenticated, logger)
		return auth.User{}, false
	}
	return user, true
}
