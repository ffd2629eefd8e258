// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

//go:build !live

package action

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"decred.org/xcpgate/gate"
	"github.com/shopspring/decimal"
)

// validParams returns a complete and valid parameter set for each action.
func validParams() map[string]url.Values {
	return map[string]url.Values{
		NameSend: {
			"source":      {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"destination": {"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"},
			"quantity":    {"1.5"},
			"asset":       {"xcp"},
		},
		NameOrder: {
			"source":                {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"give_quantity":         {"1"},
			"give_asset":            {"BTC"},
			"get_quantity":          {"200"},
			"get_asset":             {"XCP"},
			"expiration":            {"10"},
			"fee_fraction_required": {"0"},
			"fee_fraction_provided": {"0.01"},
		},
		NameBTCPay: {"order_match_id": {"abcd_ef01"}},
		NameCancel: {"offer_hash": {"deadbeef"}},
		NameIssuance: {
			"source":               {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"transfer_destination": {"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"},
			"asset_name":           {"BBBB"},
			"quantity":             {"1000"},
			"divisible":            {"1"},
			"callable":             {"1"},
			"call_date":            {"2030-01-02"},
			"call_price":           {"0.5"},
			"description":          {"a new asset"},
		},
		NameDividend: {
			"source":             {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"asset":              {"BBBB"},
			"quantity_per_share": {"0.1"},
			"dividend_asset":     {"XCP"},
		},
		NameCallback: {
			"source":             {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"asset":              {"BBBB"},
			"fraction_per_share": {"0.25"},
		},
		NameBroadcast: {
			"source":       {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"text":         {"price of gold"},
			"value":        {"-1.5"},
			"fee_fraction": {"0.05"},
		},
		NameBet: {
			"source":       {"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			"feed_address": {"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"},
			"bet_type":     {"2"},
			"deadline":     {"1700000000"},
			"wager":        {"10"},
			"counterwager": {"10"},
			"target_value": {"1"},
			"leverage":     {"5040"},
			"expiration":   {"100"},
		},
	}
}

func TestParseAll(t *testing.T) {
	for name, vals := range validParams() {
		a, err := Parse(name, vals)
		if err != nil {
			t.Fatalf("%s: Parse error: %v", name, err)
		}
		if a.Name() != name {
			t.Fatalf("%s: wrong name %s", name, a.Name())
		}
		wantSource := vals.Get("source")
		if a.Source() != wantSource {
			t.Fatalf("%s: wrong source %q", name, a.Source())
		}
	}
}

func TestMissingParameter(t *testing.T) {
	for name, vals := range validParams() {
		required, _ := RequiredParams(name)
		for _, missing := range required {
			for _, blank := range []bool{false, true} {
				v := url.Values{}
				for k, vs := range vals {
					v[k] = vs
				}
				if blank {
					v.Set(missing, "   ")
				} else {
					v.Del(missing)
				}
				_, err := Parse(name, v)
				if !errors.Is(err, gate.ErrMissingParameter) {
					t.Fatalf("%s without %s: expected ErrMissingParameter, got %v", name, missing, err)
				}
				if !strings.Contains(err.Error(), missing) {
					t.Fatalf("%s without %s: message %q does not name the parameter", name, missing, err)
				}
			}
		}
	}
}

func TestUnknownAction(t *testing.T) {
	_, err := Parse("burn", url.Values{"source": {"x"}})
	if !errors.Is(err, gate.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if err.Error() != "Unknown action." {
		t.Fatalf("wrong message %q", err)
	}
	if _, found := RequiredParams("burn"); found {
		t.Fatalf("found required params for unknown action")
	}
}

func TestInvalidNumericValues(t *testing.T) {
	tests := []struct {
		action, param, value string
	}{
		{NameOrder, "expiration", "soon"},
		{NameOrder, "expiration", "-1"},
		{NameOrder, "give_quantity", "1,5"},
		{NameSend, "quantity", "-2"},
		{NameBet, "bet_type", "7"},
		{NameBet, "bet_type", "x"},
		{NameBet, "deadline", "next tuesday"},
		{NameBet, "leverage", "1.5"},
		{NameIssuance, "call_date", "whenever"},
		{NameIssuance, "call_price", "free"},
		{NameBroadcast, "value", "NaN?"},
		{NameSend, "quantity", "1e20000000"},
		{NameOrder, "give_quantity", "1e33"},
		{NameOrder, "fee_fraction_required", "1e-40"},
		{NameBroadcast, "value", "-1e-20000000"},
		{NameDividend, "quantity_per_share", "1" + strings.Repeat("0", 45)},
		{NameBet, "wager", strings.Repeat("9", 100)},
	}
	for _, tt := range tests {
		vals := validParams()[tt.action]
		vals.Set(tt.param, tt.value)
		_, err := Parse(tt.action, vals)
		if !errors.Is(err, gate.ErrInvalidNumericValue) {
			t.Fatalf("%s %s=%q: expected ErrInvalidNumericValue, got %v", tt.action, tt.param, tt.value, err)
		}
		if !strings.Contains(err.Error(), tt.param) {
			t.Fatalf("%s: message %q does not name %s", tt.action, err, tt.param)
		}
		if len(err.Error()) > len(tt.param)+maxEchoLen+64 {
			t.Fatalf("%s: message for %s is %d bytes long", tt.action, tt.param, len(err.Error()))
		}
	}
}

func TestDecimalBounds(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"0.00000001", true},
		{"1e32", true},
		{"1e-32", true},
		{strings.Repeat("9", 40), true},
		{"1e33", false},
		{"1e-33", false},
		{"1E20000000", false},
		{strings.Repeat("9", 41), false},
		{"0." + strings.Repeat("0", 70) + "1", false},
	}
	for _, tt := range tests {
		vals := validParams()[NameSend]
		vals.Set("quantity", tt.value)
		a, err := Parse(NameSend, vals)
		if tt.ok {
			if err != nil {
				t.Fatalf("%q: Parse error: %v", tt.value, err)
			}
			if !a.(*Send).Quantity.Equal(decimal.RequireFromString(tt.value)) {
				t.Fatalf("%q: wrong quantity %s", tt.value, a.(*Send).Quantity)
			}
			continue
		}
		if !errors.Is(err, gate.ErrInvalidNumericValue) {
			t.Fatalf("%q: expected ErrInvalidNumericValue, got %v", tt.value, err)
		}
		if strings.Contains(err.Error(), tt.value) && len(tt.value) > maxEchoLen {
			t.Fatalf("%q: long value echoed in %q", tt.value, err)
		}
	}
}

func TestIssuanceNotCallable(t *testing.T) {
	vals := validParams()[NameIssuance]
	vals.Set("callable", "0")
	vals.Set("call_date", "garbage")
	vals.Set("call_price", "garbage")
	a, err := Parse(NameIssuance, vals)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	iss := a.(*Issuance)
	if iss.Callable || iss.CallDate.Unix() != 0 || !iss.CallPrice.IsZero() {
		t.Fatalf("call terms not zeroed: %+v", iss)
	}
	if !iss.Divisible {
		t.Fatalf("divisible flag lost")
	}
}

func TestParseTypes(t *testing.T) {
	a, _ := Parse(NameBet, validParams()[NameBet])
	bet := a.(*Bet)
	if bet.BetType != Equal || bet.Leverage != 5040 || bet.Expiration != 100 {
		t.Fatalf("wrong bet %+v", bet)
	}
	if !bet.Deadline.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("wrong deadline %v", bet.Deadline)
	}

	a, _ = Parse(NameSend, validParams()[NameSend])
	send := a.(*Send)
	if send.Asset != "XCP" {
		t.Fatalf("asset not upper-cased: %s", send.Asset)
	}
	if !send.Quantity.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("wrong quantity %s", send.Quantity)
	}

	a, _ = Parse(NameIssuance, validParams()[NameIssuance])
	iss := a.(*Issuance)
	if !iss.CallDate.Equal(time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("wrong call date %v", iss.CallDate)
	}
}

func TestParseIdempotent(t *testing.T) {
	for name, vals := range validParams() {
		a1, err1 := Parse(name, vals)
		a2, err2 := Parse(name, vals)
		if err1 != nil || err2 != nil {
			t.Fatalf("%s: parse errors %v, %v", name, err1, err2)
		}
		if !reflect.DeepEqual(a1, a2) {
			t.Fatalf("%s: parses differ: %+v vs %+v", name, a1, a2)
		}
	}
}

func TestValuesRoundTrip(t *testing.T) {
	for name, vals := range validParams() {
		a, _ := Parse(name, vals)
		again, err := Parse(name, a.Values())
		if err != nil {
			t.Fatalf("%s: reparse error: %v", name, err)
		}
		if !reflect.DeepEqual(a.Values(), again.Values()) {
			t.Fatalf("%s: canonical values differ: %v vs %v", name, a.Values(), again.Values())
		}
	}
}
