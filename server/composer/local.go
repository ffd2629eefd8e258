// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package composer

import (
	"context"
	"fmt"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
	"decred.org/xcpgate/gate/calc"
	"decred.org/xcpgate/server/index"
)

// Index is the local index daemon.
type Index interface {
	index.AssetInfoer
	Compose(ctx context.Context, actionName string, params map[string]any) (string, error)
	Balances(ctx context.Context, addr string) ([]*index.Balance, error)
	BTCPaySource(ctx context.Context, orderMatchID string) (string, error)
	CancelSource(ctx context.Context, offerHash string) (string, error)
}

const (
	encodingAuto     = "auto"
	encodingMultisig = "multisig"
)

// LocalConfig is the configuration for a LocalComposer.
type LocalConfig struct {
	Index Index
	// Wallet is used to look up source public keys for multisig encoding. It
	// is nil in composer mode, where callers supply the public key.
	Wallet   PubKeyer
	Mode     gate.Mode
	MinFee   int64
	Multisig bool
	Logger   gate.Logger
	// Now is the clock for broadcast timestamps. time.Now if nil.
	Now func() time.Time
}

// LocalComposer composes actions against the local index daemon.
type LocalComposer struct {
	idx      Index
	norm     *index.Normalizer
	wallet   PubKeyer
	mode     gate.Mode
	minFee   int64
	multisig bool
	log      gate.Logger
	now      func() time.Time
}

var _ Composer = (*LocalComposer)(nil)

// NewLocalComposer is the constructor for a LocalComposer.
func NewLocalComposer(cfg *LocalConfig) (*LocalComposer, error) {
	if cfg.Mode == gate.ModeLight {
		return nil, fmt.Errorf("local composition is not available in %s mode", cfg.Mode)
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("no index daemon")
	}
	if cfg.Multisig && cfg.Wallet == nil && cfg.Mode == gate.ModeFull {
		return nil, fmt.Errorf("multisig encoding requires a wallet")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	minFee := cfg.MinFee
	if minFee <= 0 {
		minFee = gate.DefaultMinFee
	}
	return &LocalComposer{
		idx:      cfg.Index,
		norm:     index.NewNormalizer(cfg.Index),
		wallet:   cfg.Wallet,
		mode:     cfg.Mode,
		minFee:   minFee,
		multisig: cfg.Multisig,
		log:      cfg.Logger,
		now:      now,
	}, nil
}

// Compose normalizes the action and has the index daemon compose it.
func (c *LocalComposer) Compose(ctx context.Context, req *Request) (*TxResult, error) {
	a := req.Action
	pubKey := req.PubKey
	if c.mode == gate.ModeComposer && pubKey == "" {
		return nil, gate.NewError(gate.ErrCompositionFailure, "Source pubkey required")
	}

	params, err := c.params(ctx, a)
	if err != nil {
		return nil, err
	}

	if pubKey == "" && c.multisig && c.wallet != nil {
		source := a.Source()
		if ref, isRef := sourceRef(a); isRef {
			if source, err = c.Source(ctx, a.Name(), ref); err != nil {
				return nil, err
			}
		}
		if pubKey, err = c.wallet.PubKey(ctx, source); err != nil {
			return nil, gate.NewError(gate.ErrCompositionFailure, err.Error())
		}
	}
	params["encoding"] = encodingAuto
	if pubKey != "" {
		params["pubkey"] = pubKey
		params["encoding"] = encodingMultisig
	}

	c.log.Debugf("Composing %s for %q", a.Name(), a.Source())
	txHex, err := c.idx.Compose(ctx, a.Name(), params)
	if err != nil {
		return nil, err
	}
	return &TxResult{Success: true, Message: txHex}, nil
}

// params converts the action to the index daemon's parameters, with
// quantities in storage units.
func (c *LocalComposer) params(ctx context.Context, a action.Action) (map[string]any, error) {
	switch at := a.(type) {
	case *action.Send:
		qty, err := c.norm.Quantity(ctx, at.Asset, at.Quantity)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"source":      at.SourceAddress,
			"destination": at.Destination,
			"asset":       at.Asset,
			"quantity":    qty,
		}, nil

	case *action.Order:
		fees, err := calc.OrderFees(&calc.OrderFeeParams{
			GiveAsset:           at.GiveAsset,
			GetAsset:            at.GetAsset,
			GiveQuantity:        at.GiveQuantity,
			GetQuantity:         at.GetQuantity,
			FeeFractionRequired: at.FeeFractionRequired,
			FeeFractionProvided: at.FeeFractionProvided,
			MinimumFee:          c.minFee,
			UnitScale:           gate.UnitScale,
		})
		if err != nil {
			return nil, err
		}
		giveQty, err := c.norm.Quantity(ctx, at.GiveAsset, at.GiveQuantity)
		if err != nil {
			return nil, err
		}
		getQty, err := c.norm.Quantity(ctx, at.GetAsset, at.GetQuantity)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"source":        at.SourceAddress,
			"give_asset":    at.GiveAsset,
			"give_quantity": giveQty,
			"get_asset":     at.GetAsset,
			"get_quantity":  getQty,
			"expiration":    at.Expiration,
			"fee_required":  fees.FeeRequired,
			"fee_provided":  fees.FeeProvided,
		}, nil

	case *action.BTCPay:
		return map[string]any{"order_match_id": at.OrderMatchID}, nil

	case *action.Cancel:
		return map[string]any{"offer_hash": at.OfferHash}, nil

	case *action.Issuance:
		qty, err := index.Units(at.Quantity, at.Divisible)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"source":               at.SourceAddress,
			"transfer_destination": at.TransferDestination,
			"asset":                at.AssetName,
			"quantity":             qty,
			"divisible":            at.Divisible,
			"callable":             at.Callable,
			"call_date":            at.CallDate.Unix(),
			"call_price":           at.CallPrice.String(),
			"description":          at.Description,
		}, nil

	case *action.Dividend:
		qty, err := c.norm.Quantity(ctx, at.DividendAsset, at.QuantityPerShare)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"source":             at.SourceAddress,
			"asset":              at.Asset,
			"dividend_asset":     at.DividendAsset,
			"quantity_per_share": qty,
		}, nil

	case *action.Callback:
		return map[string]any{
			"source":             at.SourceAddress,
			"asset":              at.Asset,
			"fraction_per_share": at.FractionPerShare.String(),
		}, nil

	case *action.Broadcast:
		return map[string]any{
			"source":       at.SourceAddress,
			"timestamp":    c.now().Unix(),
			"value":        at.Value.String(),
			"fee_fraction": at.FeeFraction.String(),
			"text":         at.Text,
		}, nil

	case *action.Bet:
		// Wagers are always in the protocol asset.
		wager, err := index.Units(at.Wager, true)
		if err != nil {
			return nil, err
		}
		counterwager, err := index.Units(at.Counterwager, true)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"source":       at.SourceAddress,
			"feed_address": at.FeedAddress,
			"bet_type":     uint8(at.BetType),
			"deadline":     at.Deadline.Unix(),
			"wager":        wager,
			"counterwager": counterwager,
			"target_value": at.TargetValue.String(),
			"leverage":     at.Leverage,
			"expiration":   at.Expiration,
		}, nil
	}
	return nil, gate.ErrUnknownAction
}

// Source resolves the source address of a btcpay or cancel from the index.
func (c *LocalComposer) Source(ctx context.Context, actionName, id string) (string, error) {
	switch actionName {
	case action.NameBTCPay:
		return c.idx.BTCPaySource(ctx, id)
	case action.NameCancel:
		return c.idx.CancelSource(ctx, id)
	}
	return "", gate.ErrUnknownAction
}

// AddressInfo fetches the address's protocol asset balances from the index.
func (c *LocalComposer) AddressInfo(ctx context.Context, addr string) (*AddressInfo, error) {
	bals, err := c.idx.Balances(ctx, addr)
	if err != nil {
		return nil, err
	}
	ai := &AddressInfo{
		Address:  addr,
		Balances: make([]*AssetBalance, 0, len(bals)),
	}
	for _, bal := range bals {
		divisible, err := c.norm.Divisible(ctx, bal.Asset)
		if err != nil {
			return nil, err
		}
		ai.Balances = append(ai.Balances, &AssetBalance{
			Asset:     bal.Asset,
			Quantity:  bal.Quantity,
			Divisible: divisible,
			Amount:    gate.AmountFromUnits(bal.Quantity, divisible),
		})
	}
	return ai, nil
}
