// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package action defines the typed transaction-composition actions accepted by
// the gateway and parses them from raw request parameters.
package action

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Action names.
const (
	NameSend      = "send"
	NameOrder     = "order"
	NameBTCPay    = "btcpay"
	NameCancel    = "cancel"
	NameIssuance  = "issuance"
	NameDividend  = "dividend"
	NameCallback  = "callback"
	NameBroadcast = "broadcast"
	NameBet       = "bet"
)

// Action is one of the nine composition actions. The concrete types are
// *Send, *Order, *BTCPay, *Cancel, *Issuance, *Dividend, *Callback,
// *Broadcast and *Bet.
type Action interface {
	// Name is the action name, e.g. "send".
	Name() string
	// Source is the address acting in the transaction. It is empty for
	// btcpay and cancel, whose source is implied by the referenced order
	// match or offer.
	Source() string
	// Values is the canonical parameter encoding of the action. Parsing the
	// returned values with the action's name yields an equivalent Action.
	Values() url.Values
}

// Send transfers a quantity of an asset.
type Send struct {
	SourceAddress string
	Destination   string
	Asset         string
	Quantity      decimal.Decimal
}

// Order places an offer to trade GiveQuantity of GiveAsset for GetQuantity of
// GetAsset.
type Order struct {
	SourceAddress       string
	GiveAsset           string
	GiveQuantity        decimal.Decimal
	GetAsset            string
	GetQuantity         decimal.Decimal
	Expiration          uint32
	FeeFractionRequired decimal.Decimal
	FeeFractionProvided decimal.Decimal
}

// BTCPay settles the base asset side of an order match.
type BTCPay struct {
	OrderMatchID string
}

// Cancel cancels an open offer.
type Cancel struct {
	OfferHash string
}

// Issuance creates or reissues an asset.
type Issuance struct {
	SourceAddress       string
	TransferDestination string
	AssetName           string
	Quantity            decimal.Decimal
	Divisible           bool
	Callable            bool
	CallDate            time.Time
	CallPrice           decimal.Decimal
	Description         string
}

// Dividend pays QuantityPerShare of DividendAsset to every holder of Asset.
type Dividend struct {
	SourceAddress    string
	Asset            string
	DividendAsset    string
	QuantityPerShare decimal.Decimal
}

// Callback calls back a fraction of a callable asset.
type Callback struct {
	SourceAddress    string
	Asset            string
	FractionPerShare decimal.Decimal
}

// Broadcast publishes a value and text to a feed.
type Broadcast struct {
	SourceAddress string
	Text          string
	Value         decimal.Decimal
	FeeFraction   decimal.Decimal
}

// BetType is the kind of a bet on a feed.
type BetType uint8

const (
	BullCFD BetType = iota
	BearCFD
	Equal
	NotEqual
)

// String returns the name of the bet type.
func (bt BetType) String() string {
	switch bt {
	case BullCFD:
		return "BullCFD"
	case BearCFD:
		return "BearCFD"
	case Equal:
		return "Equal"
	case NotEqual:
		return "NotEqual"
	}
	return fmt.Sprintf("BetType(%d)", uint8(bt))
}

// Bet wagers on a broadcast feed.
type Bet struct {
	SourceAddress string
	FeedAddress   string
	BetType       BetType
	Deadline      time.Time
	Wager         decimal.Decimal
	Counterwager  decimal.Decimal
	TargetValue   decimal.Decimal
	Leverage      uint32
	Expiration    uint32
}

func (*Send) Name() string      { return NameSend }
func (*Order) Name() string     { return NameOrder }
func (*BTCPay) Name() string    { return NameBTCPay }
func (*Cancel) Name() string    { return NameCancel }
func (*Issuance) Name() string  { return NameIssuance }
func (*Dividend) Name() string  { return NameDividend }
func (*Callback) Name() string  { return NameCallback }
func (*Broadcast) Name() string { return NameBroadcast }
func (*Bet) Name() string       { return NameBet }

func (a *Send) Source() string      { return a.SourceAddress }
func (a *Order) Source() string     { return a.SourceAddress }
func (*BTCPay) Source() string      { return "" }
func (*Cancel) Source() string      { return "" }
func (a *Issuance) Source() string  { return a.SourceAddress }
func (a *Dividend) Source() string  { return a.SourceAddress }
func (a *Callback) Source() string  { return a.SourceAddress }
func (a *Broadcast) Source() string { return a.SourceAddress }
func (a *Bet) Source() string       { return a.SourceAddress }

func (a *Send) Values() url.Values {
	return url.Values{
		"source":      {a.SourceAddress},
		"destination": {a.Destination},
		"quantity":    {a.Quantity.String()},
		"asset":       {a.Asset},
	}
}

func (a *Order) Values() url.Values {
	return url.Values{
		"source":                {a.SourceAddress},
		"give_quantity":         {a.GiveQuantity.String()},
		"give_asset":            {a.GiveAsset},
		"get_quantity":          {a.GetQuantity.String()},
		"get_asset":             {a.GetAsset},
		"expiration":            {uintString(a.Expiration)},
		"fee_fraction_required": {a.FeeFractionRequired.String()},
		"fee_fraction_provided": {a.FeeFractionProvided.String()},
	}
}

func (a *BTCPay) Values() url.Values {
	return url.Values{"order_match_id": {a.OrderMatchID}}
}

func (a *Cancel) Values() url.Values {
	return url.Values{"offer_hash": {a.OfferHash}}
}

func (a *Issuance) Values() url.Values {
	return url.Values{
		"source":               {a.SourceAddress},
		"transfer_destination": {a.TransferDestination},
		"asset_name":           {a.AssetName},
		"quantity":             {a.Quantity.String()},
		"divisible":            {flagString(a.Divisible)},
		"callable":             {flagString(a.Callable)},
		"call_date":            {strconv.FormatInt(a.CallDate.Unix(), 10)},
		"call_price":           {a.CallPrice.String()},
		"description":          {a.Description},
	}
}

func (a *Dividend) Values() url.Values {
	return url.Values{
		"source":             {a.SourceAddress},
		"asset":              {a.Asset},
		"quantity_per_share": {a.QuantityPerShare.String()},
		"dividend_asset":     {a.DividendAsset},
	}
}

func (a *Callback) Values() url.Values {
	return url.Values{
		"source":             {a.SourceAddress},
		"asset":              {a.Asset},
		"fraction_per_share": {a.FractionPerShare.String()},
	}
}

func (a *Broadcast) Values() url.Values {
	return url.Values{
		"source":       {a.SourceAddress},
		"text":         {a.Text},
		"value":        {a.Value.String()},
		"fee_fraction": {a.FeeFraction.String()},
	}
}

func (a *Bet) Values() url.Values {
	return url.Values{
		"source":       {a.SourceAddress},
		"feed_address": {a.FeedAddress},
		"bet_type":     {uintString(uint32(a.BetType))},
		"deadline":     {strconv.FormatInt(a.Deadline.Unix(), 10)},
		"wager":        {a.Wager.String()},
		"counterwager": {a.Counterwager.String()},
		"target_value": {a.TargetValue.String()},
		"leverage":     {uintString(a.Leverage)},
		"expiration":   {uintString(a.Expiration)},
	}
}

func uintString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func flagString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
