package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceholderRefPrefix marks an external payment reference that has not yet been
// replaced by a gateway-issued one.
const PlaceholderRefPrefix = "temp_"

// OrderStatus is the lifecycle state of an order record.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConsumed  OrderStatus = "consumed"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// PaymentStatus tracks the payment side of a confirmed order.
type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// FulfillmentStatus of an order line item.
type FulfillmentStatus string

const FulfillmentPending FulfillmentStatus = "pending"

// PaymentMode selects how the client hands off to the payment provider.
type PaymentMode string

const (
	PaymentModeEmbedded    PaymentMode = "embedded"
	PaymentModePaymentLink PaymentMode = "payment_link"
)

// Valid reports whether m is a supported mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeEmbedded || m == PaymentModePaymentLink
}

// ConfirmationTier records how strongly the payment behind a confirmation was verified.
type ConfirmationTier string

const (
	TierSignatureVerified     ConfirmationTier = "signature_verified"
	TierUnverifiedPaymentLink ConfirmationTier = "unverified_payment_link"
	TierUnverifiedManual      ConfirmationTier = "unverified_manual"
)

// Verified reports whether the payment id was checked against the provider.
func (t ConfirmationTier) Verified() bool {
	return t == TierSignatureVerified
}

// DeliveryAddress is snapshotted onto the order at intent time.
type DeliveryAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone"`
}

// Complete reports whether the fields needed for delivery are present.
func (a DeliveryAddress) Complete() bool {
	for _, v := range []string{a.Name, a.Line1, a.City, a.PostalCode, a.Phone} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// ProvisionalOrder is the pending record written before payment is confirmed.
type ProvisionalOrder struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	UserID             string          `json:"userId" db:"user_id"`
	OrderNumber        string          `json:"orderNumber" db:"order_number"`
	Status             OrderStatus     `json:"status" db:"status"`
	PaymentMode        PaymentMode     `json:"paymentMode" db:"payment_mode"`
	TotalAmount        decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Breakdown          PriceBreakdown  `json:"breakdown" db:"breakdown"`
	Items              []CartItem      `json:"items" db:"items_snapshot"`
	DeliveryAddress    DeliveryAddress `json:"deliveryAddress" db:"delivery_address"`
	ExternalPaymentRef string          `json:"externalPaymentRef" db:"external_payment_ref"`
	Fingerprint        string          `json:"-" db:"snapshot_fingerprint"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
}

// SnapshotFingerprint hashes everything an order is built from: the lines with their
// titles, quantities and prices, the delivery address and the priced breakdown.
// Two checkouts may share a provisional order only when their fingerprints are equal.
func SnapshotFingerprint(items []CartItem, address DeliveryAddress, breakdown PriceBreakdown) string {
	h := sha256.New()
	for _, item := range items {
		fmt.Fprintf(h, "item|%q|%q|%d|%s\n", item.ProductID, item.Title, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(h, "address|%q|%q|%q|%q|%q|%q|%q|%q\n",
		address.Name, address.Line1, address.Line2, address.City,
		address.State, address.PostalCode, address.Country, address.Phone)
	fmt.Fprintf(h, "price|%s|%s|%s|%s|%s|%s|%s|%q|%t\n",
		breakdown.Subtotal.StringFixed(2), breakdown.Discount.StringFixed(2),
		breakdown.CouponDiscount.StringFixed(2), breakdown.DeliveryCharge.StringFixed(2),
		breakdown.PlatformCharge.StringFixed(2), breakdown.Tax.StringFixed(2),
		breakdown.Total.StringFixed(2), breakdown.CouponCode, breakdown.CouponApplied)
	return hex.EncodeToString(h.Sum(nil))
}

// HasPlaceholderRef reports whether the gateway reference is still a placeholder.
func (o *ProvisionalOrder) HasPlaceholderRef() bool {
	return strings.HasPrefix(o.ExternalPaymentRef, PlaceholderRefPrefix)
}

// PlaceholderRef returns the temporary payment reference for an order number.
func PlaceholderRef(orderNumber string) string {
	return PlaceholderRefPrefix + orderNumber
}

// ConfirmedOrder is created exactly once per provisional order.
type ConfirmedOrder struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	ProvisionalOrderID uuid.UUID        `json:"provisionalOrderId" db:"provisional_order_id"`
	UserID             string           `json:"userId" db:"user_id"`
	OrderNumber        string           `json:"orderNumber" db:"order_number"`
	Status             OrderStatus      `json:"status" db:"status"`
	PaymentStatus      PaymentStatus    `json:"paymentStatus" db:"payment_status"`
	TotalAmount        decimal.Decimal  `json:"totalAmount" db:"total_amount"`
	Breakdown          PriceBreakdown   `json:"breakdown" db:"breakdown"`
	Items              []CartItem       `json:"items" db:"items_snapshot"`
	DeliveryAddress    DeliveryAddress  `json:"deliveryAddress" db:"delivery_address"`
	ExternalPaymentRef string           `json:"externalPaymentRef" db:"external_payment_ref"`
	ExternalPaymentID  string           `json:"externalPaymentId" db:"external_payment_id"`
	ConfirmationTier   ConfirmationTier `json:"confirmationTier" db:"confirmation_tier"`
	ConfirmedAt        time.Time        `json:"confirmedAt" db:"confirmed_at"`
	LineItems          []OrderLineItem  `json:"lineItems,omitempty"`
}

// OrderLineItem is one fulfilment line, tied to the seller of record at confirmation.
type OrderLineItem struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	OrderID           uuid.UUID         `json:"orderId" db:"order_id"`
	ProductID         string            `json:"productId" db:"product_id"`
	SellerID          string            `json:"sellerId" db:"seller_id"`
	Quantity          int               `json:"quantity" db:"quantity"`
	Price             decimal.Decimal   `json:"price" db:"price"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus" db:"fulfillment_status"`
}

// CheckoutRequest represents the request payload for creating an order intent.
type CheckoutRequest struct {
	CouponCode      string          `json:"couponCode,omitempty"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	Mode            PaymentMode     `json:"mode"`
}

// RetryIntentRequest re-attempts the gateway hand-off for an existing intent.
type RetryIntentRequest struct {
	Mode PaymentMode `json:"mode"`
}

// CheckoutOptions carries what an embedded checkout widget needs to open.
type CheckoutOptions struct {
	KeyID          string    `json:"keyId"`
	AmountMinor    int64     `json:"amount"`
	Currency       string    `json:"currency"`
	GatewayOrderID string    `json:"gatewayOrderId"`
	OrderNumber    string    `json:"orderNumber"`
	ProvisionalID  uuid.UUID `json:"provisionalId"`
	PrefillName    string    `json:"prefillName,omitempty"`
	PrefillEmail   string    `json:"prefillEmail,omitempty"`
}

// PaymentLinkInfo is the hosted payment page the user is handed off to.
type PaymentLinkInfo struct {
	LinkID string `json:"linkId"`
	URL    string `json:"url"`
}

// CheckoutIntent is the result of creating or retrying an order intent.
type CheckoutIntent struct {
	ProvisionalID      uuid.UUID        `json:"provisionalId"`
	OrderNumber        string           `json:"orderNumber"`
	Status             OrderStatus      `json:"status"`
	Mode               PaymentMode      `json:"mode"`
	Breakdown          PriceBreakdown   `json:"breakdown"`
	ExternalPaymentRef string           `json:"externalPaymentRef"`
	Checkout           *CheckoutOptions `json:"checkout,omitempty"`
	PaymentLink        *PaymentLinkInfo `json:"paymentLink,omitempty"`
	Reused             bool             `json:"reused"`
}

// ConfirmEmbeddedRequest is the embedded-checkout success callback.
type ConfirmEmbeddedRequest struct {
	ProvisionalID  uuid.UUID `json:"provisionalId"`
	GatewayOrderID string    `json:"gatewayOrderId"`
	PaymentID      string    `json:"paymentId"`
	Signature      string    `json:"signature"`
}

// ConfirmPaymentRequest carries a payment id from a redirect return or manual entry.
type ConfirmPaymentRequest struct {
	ProvisionalID uuid.UUID `json:"provisionalId"`
	PaymentID     string    `json:"paymentId"`
}

// ConfirmationResult is returned by every reconciliation path.
type ConfirmationResult struct {
	Order            *ConfirmedOrder  `json:"order"`
	Tier             ConfirmationTier `json:"tier"`
	Verified         bool             `json:"verified"`
	AlreadyConfirmed bool             `json:"alreadyConfirmed"`
}

// Confirmation is the input to the confirm transaction.
type Confirmation struct {
	ProvisionalID uuid.UUID
	UserID        string
	PaymentID     string
	Tier          ConfirmationTier
}

// OrderConfirmedEvent is published through the outbox after a confirmation commits.
type OrderConfirmedEvent struct {
	OrderID          uuid.UUID        `json:"order_id"`
	OrderNumber      string           `json:"order_number"`
	UserID           string           `json:"user_id"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	PaymentID        string           `json:"payment_id"`
	ConfirmationTier ConfirmationTier `json:"confirmation_tier"`
	LineItems        []OrderLineItem  `json:"line_items"`
	ConfirmedAt      time.Time        `json:"confirmed_at"`
}

// OutboxEvent is a row of the transactional outbox.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
