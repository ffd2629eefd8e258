// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package action

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"decred.org/xcpgate/gate"
	"github.com/shopspring/decimal"
)

// requiredParams maps each action to its required parameters, in the order
// they are checked.
var requiredParams = map[string][]string{
	NameSend:      {"source", "destination", "quantity", "asset"},
	NameOrder:     {"source", "give_quantity", "give_asset", "get_quantity", "get_asset", "expiration", "fee_fraction_required", "fee_fraction_provided"},
	NameBTCPay:    {"order_match_id"},
	NameCancel:    {"offer_hash"},
	NameIssuance:  {"source", "transfer_destination", "asset_name", "quantity", "divisible", "callable", "call_date", "call_price", "description"},
	NameDividend:  {"source", "asset", "quantity_per_share", "dividend_asset"},
	NameCallback:  {"source", "asset", "fraction_per_share"},
	NameBroadcast: {"source", "text", "value", "fee_fraction"},
	NameBet:       {"source", "feed_address", "bet_type", "deadline", "wager", "counterwager", "target_value", "leverage", "expiration"},
}

// Decimal parameters are bounded before any arithmetic is done on them.
const (
	maxDecimalLen      = 64
	maxDecimalDigits   = 40
	maxDecimalExponent = 32
	// maxEchoLen is the longest parameter value repeated in an error message.
	maxEchoLen = 32
)

// Names lists the supported actions.
var Names = []string{NameSend, NameOrder, NameBTCPay, NameCancel, NameIssuance,
	NameDividend, NameCallback, NameBroadcast, NameBet}

// RequiredParams returns the required parameters for the named action, or
// false if the action is unknown.
func RequiredParams(name string) ([]string, bool) {
	params, found := requiredParams[name]
	if !found {
		return nil, false
	}
	return append([]string(nil), params...), true
}

// dateLayouts are the accepted non-numeric formats for dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Validate checks that the action is known and that each of its required
// parameters is present and not blank.
func Validate(name string, vals url.Values) error {
	required, found := requiredParams[name]
	if !found {
		return gate.ErrUnknownAction
	}
	for _, param := range required {
		if strings.TrimSpace(vals.Get(param)) == "" {
			return gate.NewError(gate.ErrMissingParameter, param)
		}
	}
	return nil
}

// Parse validates the raw parameters for the named action and converts them
// into the typed Action. Parse has no side effects.
func Parse(name string, vals url.Values) (Action, error) {
	if err := Validate(name, vals); err != nil {
		return nil, err
	}

	p := &parser{vals: vals}
	var a Action
	switch name {
	case NameSend:
		a = &Send{
			SourceAddress: p.str("source"),
			Destination:   p.str("destination"),
			Asset:         p.asset("asset"),
			Quantity:      p.decimal("quantity"),
		}
	case NameOrder:
		a = &Order{
			SourceAddress:       p.str("source"),
			GiveAsset:           p.asset("give_asset"),
			GiveQuantity:        p.decimal("give_quantity"),
			GetAsset:            p.asset("get_asset"),
			GetQuantity:         p.decimal("get_quantity"),
			Expiration:          p.uint32("expiration"),
			FeeFractionRequired: p.decimal("fee_fraction_required"),
			FeeFractionProvided: p.decimal("fee_fraction_provided"),
		}
	case NameBTCPay:
		a = &BTCPay{OrderMatchID: p.str("order_match_id")}
	case NameCancel:
		a = &Cancel{OfferHash: p.str("offer_hash")}
	case NameIssuance:
		iss := &Issuance{
			SourceAddress:       p.str("source"),
			TransferDestination: p.str("transfer_destination"),
			AssetName:           p.asset("asset_name"),
			Quantity:            p.decimal("quantity"),
			Divisible:           p.flag("divisible"),
			Callable:            p.flag("callable"),
			Description:         p.str("description"),
		}
		if iss.Callable {
			iss.CallDate = p.date("call_date")
			iss.CallPrice = p.decimal("call_price")
		} else {
			iss.CallDate = time.Unix(0, 0).UTC()
		}
		a = iss
	case NameDividend:
		a = &Dividend{
			SourceAddress:    p.str("source"),
			Asset:            p.asset("asset"),
			DividendAsset:    p.asset("dividend_asset"),
			QuantityPerShare: p.decimal("quantity_per_share"),
		}
	case NameCallback:
		a = &Callback{
			SourceAddress:    p.str("source"),
			Asset:            p.asset("asset"),
			FractionPerShare: p.decimal("fraction_per_share"),
		}
	case NameBroadcast:
		a = &Broadcast{
			SourceAddress: p.str("source"),
			Text:          p.str("text"),
			Value:         p.signedDecimal("value"),
			FeeFraction:   p.decimal("fee_fraction"),
		}
	case NameBet:
		a = &Bet{
			SourceAddress: p.str("source"),
			FeedAddress:   p.str("feed_address"),
			BetType:       p.betType("bet_type"),
			Deadline:      p.date("deadline"),
			Wager:         p.decimal("wager"),
			Counterwager:  p.decimal("counterwager"),
			TargetValue:   p.signedDecimal("target_value"),
			Leverage:      p.uint32("leverage"),
			Expiration:    p.uint32("expiration"),
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return a, nil
}

// parser converts raw parameters, retaining the first conversion error. Once
// an error is recorded, subsequent conversions return zero values.
type parser struct {
	vals url.Values
	err  error
}

func (p *parser) fail(name, value, reason string) {
	if len(value) > maxEchoLen {
		value = value[:maxEchoLen] + "..."
	}
	if p.err == nil {
		p.err = gate.NewError(gate.ErrInvalidNumericValue, fmt.Sprintf("%s %q: %s", name, value, reason))
	}
}

func (p *parser) str(name string) string {
	return strings.TrimSpace(p.vals.Get(name))
}

// asset parses an asset ticker, which is case insensitive.
func (p *parser) asset(name string) string {
	return strings.ToUpper(p.str(name))
}

func (p *parser) signedDecimal(name string) decimal.Decimal {
	s := p.str(name)
	if p.err != nil {
		return decimal.Zero
	}
	if len(s) > maxDecimalLen {
		p.fail(name, s, "too many digits")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(name, s, "not a decimal number")
		return decimal.Zero
	}
	if exp := d.Exponent(); exp > maxDecimalExponent || exp < -maxDecimalExponent {
		p.fail(name, s, "exponent out of range")
		return decimal.Zero
	}
	if d.NumDigits() > maxDecimalDigits {
		p.fail(name, s, "too many digits")
		return decimal.Zero
	}
	return d
}

func (p *parser) decimal(name string) decimal.Decimal {
	d := p.signedDecimal(name)
	if d.IsNegative() {
		p.fail(name, p.str(name), "must not be negative")
		return decimal.Zero
	}
	return d
}

func (p *parser) uint32(name string) uint32 {
	s := p.str(name)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		p.fail(name, s, "not an unsigned integer")
		return 0
	}
	return uint32(v)
}

func (p *parser) flag(name string) bool {
	return p.str(name) == "1"
}

func (p *parser) betType(name string) BetType {
	v := p.uint32(name)
	if v > uint32(NotEqual) {
		p.fail(name, p.str(name), "unknown bet type")
		return 0
	}
	return BetType(v)
}

// date parses a unix timestamp in seconds or one of the dateLayouts. Dates
// without a zone are UTC.
func (p *parser) date(name string) time.Time {
	s := p.str(name)
	if p.err != nil {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	p.fail(name, s, "not a date")
	return time.Time{}
}
