package gateway

import "github.com/shopspring/decimal"

var minorUnitsPerMajor = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to the integer minor units the provider
// expects, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
}

// FromMinorUnits converts provider minor units back to major units.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
