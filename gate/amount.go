// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DivisiblePlaces is the number of decimal places displayed for divisible
// assets.
const DivisiblePlaces = 8

// Amount is a display quantity that marshals to and from a fixed-precision
// decimal string. Binary floating point never crosses the network boundary.
type Amount struct {
	d      decimal.Decimal
	places int32
}

// NewAmount creates an Amount displayed with the given number of decimal
// places.
func NewAmount(d decimal.Decimal, places int32) Amount {
	return Amount{d: d, places: places}
}

// AmountFromUnits converts a storage quantity into a display Amount. Divisible
// quantities are scaled down by UnitScale.
func AmountFromUnits(units int64, divisible bool) Amount {
	if divisible {
		return Amount{d: decimal.New(units, -DivisiblePlaces), places: DivisiblePlaces}
	}
	return Amount{d: decimal.NewFromInt(units)}
}

// Decimal is the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// Places is the number of decimal places used for display.
func (a Amount) Places() int32 {
	return a.places
}

// IsZero is true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// Add returns the sum of the two amounts, displayed with the greater
// precision of the two.
func (a Amount) Add(b Amount) Amount {
	places := a.places
	if b.places > places {
		places = b.places
	}
	return Amount{d: a.d.Add(b.d), places: places}
}

// Equal is true if the two amounts have the same value, regardless of display
// precision.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// String returns the fixed-precision decimal representation.
func (a Amount) String() string {
	return a.d.StringFixed(a.places)
}

// MarshalJSON satisfies the json.Marshaler interface, marshaling the amount
// as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON satisfies the json.Unmarshaler interface. Both decimal strings
// and bare JSON numbers are accepted. The display precision is taken from the
// number of digits after the decimal point.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(b), err)
	}
	var places int32
	if i := strings.IndexByte(s, '.'); i >= 0 {
		places = int32(len(s) - i - 1)
	}
	*a = Amount{d: d, places: places}
	return nil
}
