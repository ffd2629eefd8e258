// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package composer turns validated actions into unsigned transactions, either
// against the local index daemon or by delegating to a remote composer peer.
package composer

import (
	"context"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
)

// TxResult is the uniform result of a composition request. On success,
// Message is the unsigned transaction hex, otherwise it describes the error.
type TxResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Request is a request to compose an action.
type Request struct {
	Action action.Action
	// PubKey is a caller-supplied public key for the source address. It is
	// required in composer mode.
	PubKey string
}

// AssetBalance is a single asset balance of an address.
type AssetBalance struct {
	Asset     string      `json:"asset"`
	Quantity  int64       `json:"quantity"`
	Divisible bool        `json:"divisible"`
	Amount    gate.Amount `json:"amount"`
}

// AddressInfo is the protocol asset balances of an address.
type AddressInfo struct {
	Address  string          `json:"address"`
	Balances []*AssetBalance `json:"balances"`
}

// Composer composes actions. A Composer is selected once at startup based on
// the operating mode.
type Composer interface {
	// Compose composes the action into an unsigned transaction. Errors are
	// returned for failures, while a TxResult with Success false is a
	// remote peer's failure passed through unchanged.
	Compose(ctx context.Context, req *Request) (*TxResult, error)
	// Source resolves the source address of a btcpay order match or a cancel
	// offer.
	Source(ctx context.Context, actionName, id string) (string, error)
	// AddressInfo fetches the protocol asset balances of the address.
	AddressInfo(ctx context.Context, addr string) (*AddressInfo, error)
}

// PubKeyer looks up the public key of a wallet address.
type PubKeyer interface {
	PubKey(ctx context.Context, addr string) (string, error)
}

// sourceRef is the order match ID or offer hash from which the source address
// of a btcpay or cancel is resolved.
func sourceRef(a action.Action) (string, bool) {
	switch at := a.(type) {
	case *action.BTCPay:
		return at.OrderMatchID, true
	case *action.Cancel:
		return at.OfferHash, true
	}
	return "", false
}
