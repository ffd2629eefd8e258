// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package index

import (
	"context"
	"fmt"
	"math"

	"decred.org/xcpgate/gate"
	"github.com/shopspring/decimal"
)

// AssetInfoer looks up asset information.
type AssetInfoer interface {
	AssetInfo(ctx context.Context, asset string) (*AssetInfo, error)
}

var (
	unitScale   = decimal.NewFromInt(gate.UnitScale)
	maxQuantity = decimal.NewFromInt(math.MaxInt64)
)

// Normalizer converts between display quantities and the integer storage
// units used by the protocol. Asset divisibility is looked up for every call.
type Normalizer struct {
	assets AssetInfoer
}

// NewNormalizer is the constructor for a Normalizer.
func NewNormalizer(assets AssetInfoer) *Normalizer {
	return &Normalizer{assets: assets}
}

// Divisible reports whether the asset is divisible. The base and protocol
// assets are always divisible.
func (n *Normalizer) Divisible(ctx context.Context, asset string) (bool, error) {
	switch asset {
	case gate.BaseAsset, gate.ProtocolAsset:
		return true, nil
	}
	ai, err := n.assets.AssetInfo(ctx, asset)
	if err != nil {
		return false, gate.NewError(gate.ErrCompositionFailure, err.Error())
	}
	return ai.Divisible, nil
}

// Quantity converts the display quantity of the asset to storage units.
func (n *Normalizer) Quantity(ctx context.Context, asset string, d decimal.Decimal) (int64, error) {
	divisible, err := n.Divisible(ctx, asset)
	if err != nil {
		return 0, err
	}
	return Units(d, divisible)
}

// Display converts a storage quantity of the asset to a display Amount.
func (n *Normalizer) Display(ctx context.Context, asset string, units int64) (gate.Amount, error) {
	divisible, err := n.Divisible(ctx, asset)
	if err != nil {
		return gate.Amount{}, err
	}
	return gate.AmountFromUnits(units, divisible), nil
}

// Units converts a display quantity to storage units. A divisible quantity
// must have at most eight decimal places, and an indivisible quantity must be
// whole.
func Units(d decimal.Decimal, divisible bool) (int64, error) {
	// Any nonzero value with an exponent above 18 exceeds the int64 range.
	// Reject it before rescaling the coefficient.
	if !d.IsZero() && d.Exponent() > 18 {
		return 0, gate.NewError(gate.ErrInvalidNumericValue, "quantity out of range")
	}
	if divisible {
		d = d.Mul(unitScale)
		if !d.IsInteger() {
			return 0, gate.NewError(gate.ErrInvalidNumericValue,
				"Divisible assets have only eight decimal places of precision.")
		}
	} else if !d.IsInteger() {
		return 0, gate.NewError(gate.ErrInvalidNumericValue,
			"Fractional quantities of indivisible assets.")
	}
	if d.GreaterThan(maxQuantity) || d.IsNegative() {
		return 0, gate.NewError(gate.ErrInvalidNumericValue, fmt.Sprintf("quantity %s out of range", d))
	}
	return d.IntPart(), nil
}
