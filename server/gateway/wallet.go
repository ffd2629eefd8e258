// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gateway

import (
	"context"
	"errors"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/server/composer"
	"golang.org/x/sync/errgroup"
)

// WalletSnapshot is the wallet's balances by address and the totals by asset.
// Addresses without a nonzero balance are omitted.
type WalletSnapshot struct {
	Addresses map[string]map[string]gate.Amount `json:"addresses"`
	Totals    map[string]gate.Amount            `json:"totals"`
}

// ErrNoWallet is returned for wallet queries in composer mode.
var ErrNoWallet = errors.New("no wallet in composer mode")

// WalletSnapshot builds a snapshot of the wallet's balances. The base asset
// balances come from the wallet's address groupings, and protocol asset
// balances come from the mode's Composer. Snapshots are never cached.
func (g *Gateway) WalletSnapshot(ctx context.Context) (*WalletSnapshot, error) {
	if g.wallet == nil {
		return nil, ErrNoWallet
	}
	start := time.Now()
	snap, err := g.walletSnapshot(ctx)
	var n int
	if snap != nil {
		n = len(snap.Addresses)
	}
	g.metrics.ObserveSnapshot(n, time.Since(start), err)
	return snap, err
}

func (g *Gateway) walletSnapshot(ctx context.Context) (*WalletSnapshot, error) {
	groupings, err := g.wallet.AddressGroupings(ctx)
	if err != nil {
		return nil, err
	}

	// An address may be reported in more than one grouping. Only the first
	// report counts.
	var addrs []string
	baseBalances := make(map[string]int64)
	for _, group := range groupings {
		for _, ab := range group {
			if _, seen := baseBalances[ab.Address]; seen {
				continue
			}
			baseBalances[ab.Address] = int64(ab.Amount)
			addrs = append(addrs, ab.Address)
		}
	}

	infos := make([]*composer.AddressInfo, len(addrs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, addr := range addrs {
		eg.Go(func() error {
			ai, err := g.composer.AddressInfo(egCtx, addr)
			if err != nil {
				return err
			}
			infos[i] = ai
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	snap := &WalletSnapshot{
		Addresses: make(map[string]map[string]gate.Amount),
		Totals:    make(map[string]gate.Amount),
	}
	for i, addr := range addrs {
		bals := make(map[string]gate.Amount)
		if units := baseBalances[addr]; units != 0 {
			bals[gate.BaseAsset] = gate.AmountFromUnits(units, true)
		}
		for _, bal := range infos[i].Balances {
			if bal.Asset == gate.BaseAsset || bal.Amount.IsZero() {
				continue
			}
			bals[bal.Asset] = bal.Amount
		}
		if len(bals) == 0 {
			continue
		}
		snap.Addresses[addr] = bals
		for asset, amt := range bals {
			if total, found := snap.Totals[asset]; found {
				amt = total.Add(amt)
			}
			snap.Totals[asset] = amt
		}
	}
	g.log.Debugf("Wallet snapshot: %d of %d addresses with balances", len(snap.Addresses), len(addrs))
	return snap, nil
}
