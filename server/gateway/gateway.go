// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package gateway orchestrates action requests: validation and parsing,
// composition through the mode's Composer, and signing and broadcast in full
// mode. It also builds wallet snapshots.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
	"decred.org/xcpgate/server/asset/btc"
	"decred.org/xcpgate/server/composer"
	"decred.org/xcpgate/server/metrics"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Wallet is the local wallet.
type Wallet interface {
	AddressGroupings(ctx context.Context) ([][]*btc.AddressBalance, error)
	SignAndSend(ctx context.Context, unsignedHex, pass string) (*chainhash.Hash, error)
}

// Config is the configuration for a Gateway. It is copied by NewGateway and
// cannot be changed afterwards.
type Config struct {
	Mode     gate.Mode
	Composer composer.Composer
	// Wallet is required in full and light modes.
	Wallet  Wallet
	Metrics *metrics.Metrics
	Logger  gate.Logger
	// SnapshotConcurrency limits concurrent balance lookups while building a
	// wallet snapshot.
	SnapshotConcurrency int
}

const defaultSnapshotConcurrency = 8

// Gateway handles action requests and wallet queries.
type Gateway struct {
	mode        gate.Mode
	composer    composer.Composer
	wallet      Wallet
	metrics     *metrics.Metrics
	log         gate.Logger
	concurrency int
}

// NewGateway is the constructor for a Gateway.
func NewGateway(cfg *Config) (*Gateway, error) {
	if cfg.Composer == nil {
		return nil, errors.New("no composer")
	}
	if cfg.Mode != gate.ModeComposer && cfg.Wallet == nil {
		return nil, fmt.Errorf("%s mode requires a wallet", cfg.Mode)
	}
	concurrency := cfg.SnapshotConcurrency
	if concurrency <= 0 {
		concurrency = defaultSnapshotConcurrency
	}
	return &Gateway{
		mode:        cfg.Mode,
		composer:    cfg.Composer,
		wallet:      cfg.Wallet,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		concurrency: concurrency,
	}, nil
}

// Mode is the gateway's operating mode.
func (g *Gateway) Mode() gate.Mode {
	return g.mode
}

// SubmitRequest is a raw action request.
type SubmitRequest struct {
	Action string
	Params url.Values
	// Unsigned requests only the unsigned transaction, even in full mode.
	Unsigned bool
	// Passphrase unlocks the wallet before signing.
	Passphrase string
	// PubKey is a caller-supplied public key for the source address.
	PubKey string
}

// Submit handles an action request. Every failure is converted to a TxResult
// with Success false.
func (g *Gateway) Submit(ctx context.Context, req *SubmitRequest) *composer.TxResult {
	start := time.Now()
	res, err := g.submit(ctx, req)
	label := metrics.ResultSuccess
	switch {
	case err != nil:
		g.log.Infof("%s request failed: %v", req.Action, err)
		res = &composer.TxResult{Message: ErrorMessage(err)}
		label = kindLabel(err)
	case !res.Success:
		label = "rejected"
	}
	g.metrics.ObserveAction(actionLabel(req.Action), label, time.Since(start))
	return res
}

func (g *Gateway) submit(ctx context.Context, req *SubmitRequest) (*composer.TxResult, error) {
	a, err := action.Parse(req.Action, req.Params)
	if err != nil {
		return nil, err
	}
	res, err := g.composer.Compose(ctx, &composer.Request{Action: a, PubKey: req.PubKey})
	if err != nil {
		return nil, err
	}
	if !res.Success || req.Unsigned || !g.mode.CanSign() {
		return res, nil
	}
	txHash, err := g.wallet.SignAndSend(ctx, res.Message, req.Passphrase)
	if err != nil {
		return nil, err
	}
	return &composer.TxResult{
		Success: true,
		Message: "Transaction transmited: " + txHash.String(),
	}, nil
}

// Source resolves the source address of a btcpay order match or a cancel
// offer.
func (g *Gateway) Source(ctx context.Context, actionName, id string) *composer.TxResult {
	addr, err := g.composer.Source(ctx, actionName, id)
	if err != nil {
		g.log.Debugf("%s source lookup for %s failed: %v", actionName, id, err)
		return &composer.TxResult{Message: ErrorMessage(err)}
	}
	return &composer.TxResult{Success: true, Message: addr}
}

// AddressInfo fetches the protocol asset balances of the address.
func (g *Gateway) AddressInfo(ctx context.Context, addr string) (*composer.AddressInfo, error) {
	return g.composer.AddressInfo(ctx, addr)
}

// ErrorMessage is the message returned to callers for an error. Composition
// failures carry the collaborator's message verbatim.
func ErrorMessage(err error) string {
	switch kind := gate.KindOf(err); kind {
	case gate.ErrUnknownAction, gate.ErrInsufficientFee, gate.ErrInvalidSourceAddress:
		return kind.Error()
	case gate.ErrCompositionFailure:
		var gErr gate.Error
		if errors.As(err, &gErr) {
			return gErr.Detail()
		}
	}
	return err.Error()
}

func kindLabel(err error) string {
	switch gate.KindOf(err) {
	case gate.ErrUnknownAction:
		return "unknown_action"
	case gate.ErrMissingParameter:
		return "missing_parameter"
	case gate.ErrInvalidNumericValue:
		return "invalid_numeric_value"
	case gate.ErrInsufficientFee:
		return "insufficient_fee"
	case gate.ErrInvalidSourceAddress:
		return "invalid_source_address"
	case gate.ErrCompositionFailure:
		return "composition_failure"
	case gate.ErrRemoteUnavailable:
		return "remote_unavailable"
	case gate.ErrSigningFailure:
		return "signing_failure"
	case gate.ErrBroadcastFailure:
		return "broadcast_failure"
	}
	return "error"
}

// actionLabel bounds the metric label values to the known actions.
func actionLabel(name string) string {
	if _, known := action.RequiredParams(name); known {
		return name
	}
	return "unknown"
}
