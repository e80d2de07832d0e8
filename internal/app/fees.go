package app

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultPlatformFeePercent is the platform's cut of a client-to-business payment.
const DefaultPlatformFeePercent = 5

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	hundred = decimal.NewFromInt(100)
)

// SplitPlatformFee splits amount into the platform fee and what the business receives.
// The fee is rounded to two decimal places and the business gets the remainder, so the
// parts always add back up to amount.
func SplitPlatformFee(amount decimal.Decimal, feePercent decimal.Decimal) (platformFee decimal.Decimal, businessAmount decimal.Decimal) {
	platformFee = amount.Mul(feePercent).Div(hundred).Round(2)
	businessAmount = amount.Sub(platformFee)
	return platformFee, businessAmount
}

// ToMinorUnits converts a major-unit amount to the provider's minor unit (×100), rounding
// half away from zero to the nearest whole minor unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts a provider minor-unit amount back to major units.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred).Round(2)
}
