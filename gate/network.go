// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import (
	"fmt"
	"strings"
)

const (
	// BaseAsset is the ticker of the chain's native settlement asset. Protocol
	// fees are denominated in it.
	BaseAsset = "BTC"
	// ProtocolAsset is the native asset of the protocol layer. It is always
	// divisible.
	ProtocolAsset = "XCP"
	// UnitScale is the number of base units in one whole unit of a divisible
	// asset.
	UnitScale = 1e8
	// DefaultMinFee is the default flat fee, in satoshis, supplied by an order
	// when the fee cannot be derived from a base-asset side of the trade.
	DefaultMinFee = 10000
)

// Network flags passed to components to signify which network to use.
type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Regtest
)

// String returns the string representation of a Network.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	}
	return ""
}

// Mode is the process-wide operating mode. It is fixed at startup.
type Mode uint8

const (
	// ModeFull composes against the local index and may sign and broadcast
	// with the local wallet.
	ModeFull Mode = iota
	// ModeLight delegates composition to a remote composer peer and only
	// attaches local public key material. It never signs.
	ModeLight
	// ModeComposer composes against the local index on behalf of light
	// peers. It never signs and requires callers to supply a public key.
	ModeComposer
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeLight:
		return "light"
	case ModeComposer:
		return "composer"
	}
	return fmt.Sprintf("unknown mode %d", m)
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "full", "":
		return ModeFull, nil
	case "light":
		return ModeLight, nil
	case "composer":
		return ModeComposer, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// CanSign is true for modes that sign and broadcast with the local wallet.
func (m Mode) CanSign() bool {
	return m == ModeFull
}
