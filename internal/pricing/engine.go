// Package pricing computes the itemised price breakdown of a cart subtotal.
package pricing

import (
	"storefront/internal/coupon"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config holds the fee schedule applied by the engine.
type Config struct {
	// DeliveryThreshold is the subtotal at or above which delivery is free.
	DeliveryThreshold decimal.Decimal
	DeliveryFee       decimal.Decimal
	// PlatformRate and TaxRate are fractions, e.g. 0.02 for 2%.
	PlatformRate decimal.Decimal
	TaxRate      decimal.Decimal
}

// DefaultConfig returns the standard fee schedule.
func DefaultConfig() Config {
	return Config{
		DeliveryThreshold: decimal.NewFromInt(500),
		DeliveryFee:       decimal.NewFromInt(50),
		PlatformRate:      decimal.RequireFromString("0.02"),
		TaxRate:           decimal.RequireFromString("0.18"),
	}
}

// Engine prices a subtotal against a coupon table. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	cfg   Config
	rules coupon.RuleSet
}

// NewEngine creates an engine. A nil rule set falls back to the built-in coupons.
func NewEngine(cfg Config, rules coupon.RuleSet) *Engine {
	if rules == nil {
		rules = coupon.DefaultRuleSet()
	}
	return &Engine{cfg: cfg, rules: rules}
}

// Calculate returns the breakdown for subtotal with couponCode applied.
// Unknown codes are ignored.
func (e *Engine) Calculate(subtotal decimal.Decimal, couponCode string) model.PriceBreakdown {
	subtotal = subtotal.Round(2)

	b := model.PriceBreakdown{
		Subtotal:       subtotal,
		Discount:       decimal.Zero,
		CouponDiscount: decimal.Zero,
		DeliveryCharge: decimal.Zero,
		PlatformCharge: decimal.Zero,
		Tax:            decimal.Zero,
		CouponCode:     couponCode,
	}

	var waive bool
	if rule, ok := e.rules.Lookup(couponCode); ok {
		b.CouponApplied = true
		waive = rule.WaiveFees
		if rule.PercentOff.IsPositive() {
			b.CouponDiscount = subtotal.Mul(rule.PercentOff).Div(hundred).Round(2)
		}
	}

	if !waive {
		if subtotal.LessThan(e.cfg.DeliveryThreshold) {
			b.DeliveryCharge = e.cfg.DeliveryFee.Round(2)
		}
		b.PlatformCharge = subtotal.Mul(e.cfg.PlatformRate).Round(2)

		taxable := subtotal.Sub(b.Discount).Sub(b.CouponDiscount).Add(b.DeliveryCharge).Add(b.PlatformCharge)
		b.Tax = taxable.Mul(e.cfg.TaxRate).Round(2)
	}

	b.Total = subtotal.
		Sub(b.Discount).
		Sub(b.CouponDiscount).
		Add(b.DeliveryCharge).
		Add(b.PlatformCharge).
		Add(b.Tax).
		Round(2)

	return b
}
