package model

import "github.com/shopspring/decimal"

// PriceBreakdown itemises the charges for a cart subtotal.
// Total = Subtotal - Discount - CouponDiscount + DeliveryCharge + PlatformCharge + Tax.
type PriceBreakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	PlatformCharge decimal.Decimal `json:"platformCharge"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	CouponCode     string          `json:"couponCode,omitempty"`
	CouponApplied  bool            `json:"couponApplied"`
}

// QuoteRequest asks for a price breakdown of the caller's current cart.
type QuoteRequest struct {
	CouponCode string `json:"couponCode,omitempty"`
}

// QuoteResponse pairs the priced cart with its breakdown.
type QuoteResponse struct {
	Cart      CartView       `json:"cart"`
	Breakdown PriceBreakdown `json:"breakdown"`
}
