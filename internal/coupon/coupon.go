// Package coupon loads the coupon rule table used by the price breakdown engine.
package coupon

import (
	"context"

	"github.com/shopspring/decimal"
)

// Rule is one row of the coupon table. A rule either takes a percentage off the
// subtotal or waives every fee.
type Rule struct {
	Code       string          `json:"code"`
	PercentOff decimal.Decimal `json:"percent_off"`
	WaiveFees  bool            `json:"waive_fees"`
}

// RuleSet is a read-only coupon table.
type RuleSet interface {
	// Lookup returns the rule for code. Matching is exact and case-sensitive.
	Lookup(code string) (Rule, bool)

	// Size returns the number of rules in the set.
	Size() int

	// Rules returns every rule in the set.
	Rules() []Rule
}

// Loader reads a gzipped JSON-lines rule file and returns a RuleSet.
type Loader interface {
	Load(ctx context.Context, path string) (RuleSet, error)
}
