package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	ProvisionalID string `json:"provisionalId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON            = "INVALID_JSON"
	ErrCodeMissingField           = "MISSING_FIELD"
	ErrCodeInvalidParameter       = "INVALID_PARAMETER"
	ErrCodeUnauthorised           = "UNAUTHORIZED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeInternalError          = "INTERNAL_ERROR"
	ErrCodeProductNotFound        = "PRODUCT_NOT_FOUND"
	ErrCodeInvalidQuantity        = "INVALID_QUANTITY"
	ErrCodeEmptyCart              = "EMPTY_CART"
	ErrCodeInvalidAddress         = "INVALID_ADDRESS"
	ErrCodeInvalidPaymentMode     = "INVALID_PAYMENT_MODE"
	ErrCodeMissingPaymentID       = "MISSING_PAYMENT_ID"
	ErrCodeInvalidPaymentID       = "INVALID_PAYMENT_ID"
	ErrCodeOrderCreationFailed    = "ORDER_CREATION_FAILED"
	ErrCodeUpstreamUnavailable    = "UPSTREAM_UNAVAILABLE"
	ErrCodeGatewayOrderPending    = "GATEWAY_ORDER_PENDING"
	ErrCodeVerificationFailed     = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeOrderNotFound          = "ORDER_NOT_FOUND"
	ErrCodeAlreadyConfirmed       = "ALREADY_CONFIRMED"
	ErrCodeConfirmationInProgress = "CONFIRMATION_IN_PROGRESS"
	ErrCodeInsufficientStock      = "INSUFFICIENT_STOCK"
	ErrCodePartialConfirmation    = "PARTIAL_CONFIRMATION"
	ErrCodePaymentAlreadyUsed     = "PAYMENT_ALREADY_USED"
	ErrCodeOrderNotPending        = "ORDER_NOT_PENDING"
)

// ErrorKind groups domain errors by how callers are expected to react.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindUnauthenticated     ErrorKind = "unauthenticated"
	KindUpstream            ErrorKind = "upstream"
	KindVerification        ErrorKind = "verification"
	KindPartialConfirmation ErrorKind = "partial_confirmation"
	KindConflict            ErrorKind = "conflict"
	KindNotFound            ErrorKind = "not_found"
	KindStorage             ErrorKind = "storage"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
	Kind    ErrorKind
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// AsDomainError unwraps err to the first DomainError in its chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain errors
var (
	ErrUnauthenticated     = NewDomainError(KindUnauthenticated, ErrCodeUnauthorised, "A signed-in user is required")
	ErrProductNotFound     = NewDomainError(KindNotFound, ErrCodeProductNotFound, "One or more products not found")
	ErrInvalidQuantity     = NewDomainError(KindValidation, ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrEmptyCart           = NewDomainError(KindValidation, ErrCodeEmptyCart, "Cart is empty, nothing to checkout")
	ErrInvalidAddress      = NewDomainError(KindValidation, ErrCodeInvalidAddress, "Delivery address is incomplete")
	ErrInvalidPaymentMode  = NewDomainError(KindValidation, ErrCodeInvalidPaymentMode, "Payment mode must be embedded or payment_link")
	ErrMissingPaymentID    = NewDomainError(KindValidation, ErrCodeMissingPaymentID, "Payment identifier is required")
	ErrInvalidPaymentID    = NewDomainError(KindValidation, ErrCodeInvalidPaymentID, "Payment identifier is not well formed")
	ErrOrderCreationFailed = NewDomainError(KindStorage, ErrCodeOrderCreationFailed, "Order could not be created")

	ErrUpstreamUnavailable = NewDomainError(KindUpstream, ErrCodeUpstreamUnavailable, "Payment provider is unavailable, please retry")
	ErrGatewayOrderPending = NewDomainError(KindUpstream, ErrCodeGatewayOrderPending, "Order saved but payment could not be started, retry payment for this order")

	ErrPaymentVerificationFailed = NewDomainError(KindVerification, ErrCodeVerificationFailed, "Payment could not be verified")

	ErrOrderNotFound          = NewDomainError(KindNotFound, ErrCodeOrderNotFound, "Order not found")
	ErrAlreadyConfirmed       = NewDomainError(KindConflict, ErrCodeAlreadyConfirmed, "Order was already confirmed with a different payment")
	ErrConfirmationInProgress = NewDomainError(KindConflict, ErrCodeConfirmationInProgress, "Order confirmation already in progress")
	ErrPaymentAlreadyUsed     = NewDomainError(KindConflict, ErrCodePaymentAlreadyUsed, "Payment identifier was already used for another order")
	ErrOrderNotPending        = NewDomainError(KindConflict, ErrCodeOrderNotPending, "Order is no longer awaiting payment")

	ErrInsufficientStock   = NewDomainError(KindPartialConfirmation, ErrCodeInsufficientStock, "Not enough stock to fulfil the order")
	ErrPartialConfirmation = NewDomainError(KindPartialConfirmation, ErrCodePartialConfirmation, "Order confirmation could not be completed, nothing was saved")
)

// GatewayPendingError reports a provisional order that was saved but could not be
// handed to the payment provider. It matches ErrGatewayOrderPending.
type GatewayPendingError struct {
	ProvisionalID uuid.UUID
	OrderNumber   string
	Err           error
}

func (e *GatewayPendingError) Error() string {
	return fmt.Sprintf("%s (order %s): %v", ErrGatewayOrderPending.Message, e.OrderNumber, e.Err)
}

func (e *GatewayPendingError) Unwrap() []error {
	return []error{ErrGatewayOrderPending, e.Err}
}
