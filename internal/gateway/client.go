// Package gateway is the payment provider adapter. It creates provider orders and
// hosted payment links and verifies checkout signatures. It never confirms orders.
package gateway

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrUnexpectedResponse is returned when the provider answers with a shape the
// adapter does not recognise.
var ErrUnexpectedResponse = errors.New("unexpected gateway response")

const (
	entityOrder       = "order"
	entityPaymentLink = "payment_link"
)

var paymentIDPattern = regexp.MustCompile(`^pay_[A-Za-z0-9]{8,32}$`)

// ValidPaymentID reports whether id has the provider's payment identifier syntax.
// It does not check that the payment exists.
func ValidPaymentID(id string) bool {
	return paymentIDPattern.MatchString(id)
}

// Client is the payment provider surface used by checkout and reconciliation.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error)
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLinkResponse, error)
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool

	// KeyID is the public key identifier handed to embedded checkout widgets.
	KeyID() string
	Currency() string
}

// Config configures the HTTP client.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

// CreateOrderRequest asks the provider for an order to attach a checkout to.
type CreateOrderRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// OrderResponse is the provider's order entity.
type OrderResponse struct {
	ID          string `json:"id"`
	Entity      string `json:"entity"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// LinkCustomer prefills the hosted payment page.
type LinkCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// LinkItem is one line shown on the hosted payment page.
type LinkItem struct {
	Name        string
	Quantity    int
	AmountMinor int64
}

// LinkAddress is the shipping address recorded against the link.
type LinkAddress struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentLinkRequest asks the provider for a hosted payment link.
type PaymentLinkRequest struct {
	AmountMinor int64
	Currency    string
	Description string
	ReferenceID string
	Customer    LinkCustomer
	Items       []LinkItem
	Address     LinkAddress
	CallbackURL string
}

// PaymentLinkResponse is the provider's payment link entity.
type PaymentLinkResponse struct {
	ID          string `json:"id"`
	Entity      string `json:"entity"`
	ShortURL    string `json:"short_url"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}
