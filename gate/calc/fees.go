// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package calc

import (
	"math"

	"decred.org/xcpgate/gate"
	"github.com/shopspring/decimal"
)

// OrderFeeParams are the inputs to the order fee policy. Quantities are in
// display units. UnitScale converts a display quantity of the base asset to
// its smallest unit.
type OrderFeeParams struct {
	GiveAsset           string
	GetAsset            string
	GiveQuantity        decimal.Decimal
	GetQuantity         decimal.Decimal
	FeeFractionRequired decimal.Decimal
	FeeFractionProvided decimal.Decimal
	MinimumFee          int64
	UnitScale           int64
}

// FeePolicy is the fee required from a counterparty and the fee provided by
// the order, both in base asset units.
type FeePolicy struct {
	FeeRequired int64
	FeeProvided int64
}

// OrderFees applies the order fee policy. The fee is denominated in the base
// asset. When the order gives the base asset, it provides a fee that is a
// fraction of the quantity given, which must meet the minimum fee. When the
// order gets the base asset, it provides the minimum fee and requires a
// fraction of the quantity gotten from the counterparty. Otherwise the order
// provides the minimum fee and requires nothing.
//
// Fractional fees are rounded half away from zero to the nearest unit.
func OrderFees(p *OrderFeeParams) (*FeePolicy, error) {
	scale := decimal.NewFromInt(p.UnitScale)
	switch {
	case p.GiveAsset == gate.BaseAsset:
		provided, err := scaledFee("provided", p.FeeFractionProvided, p.GiveQuantity, scale)
		if err != nil {
			return nil, err
		}
		if provided < p.MinimumFee {
			return nil, gate.ErrInsufficientFee
		}
		return &FeePolicy{FeeProvided: provided}, nil
	case p.GetAsset == gate.BaseAsset:
		required, err := scaledFee("required", p.FeeFractionRequired, p.GetQuantity, scale)
		if err != nil {
			return nil, err
		}
		return &FeePolicy{
			FeeRequired: required,
			FeeProvided: p.MinimumFee,
		}, nil
	default:
		return &FeePolicy{FeeProvided: p.MinimumFee}, nil
	}
}

var maxFee = decimal.NewFromInt(math.MaxInt64)

// scaledFee is fraction * qty * scale rounded to a whole unit. A fee that does
// not fit in an int64 is an InvalidNumericValue.
func scaledFee(name string, fraction, qty, scale decimal.Decimal) (int64, error) {
	outOfRange := gate.NewError(gate.ErrInvalidNumericValue, "fee "+name+" out of range")
	fee := fraction.Mul(qty).Mul(scale)
	// Nonzero fees with exponents above 18 exceed the int64 range.
	if !fee.IsZero() && fee.Exponent() > 18 {
		return 0, outOfRange
	}
	fee = fee.Round(0)
	if fee.IsNegative() || fee.GreaterThan(maxFee) {
		return 0, outOfRange
	}
	return fee.IntPart(), nil
}
