// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package index is a client for the local protocol index daemon, which holds
// the protocol's chain state and composes unsigned transactions from it.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"decred.org/xcpgate/gate"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
)

const (
	methodGetBalances     = "get_balances"
	methodGetAssetInfo    = "get_asset_info"
	methodGetBTCPaySource = "get_btcpay_source"
	methodGetCancelSource = "get_cancel_source"
	methodGetRunningInfo  = "get_running_info"
	createPrefix          = "create_"
)

// RawRequester sends raw JSON-RPC requests. It is satisfied by
// *rpcclient.Client.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// Balance is a single asset balance of an address, in storage units.
type Balance struct {
	Address  string `json:"address"`
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// AssetInfo is the subset of get_asset_info used by the gateway.
type AssetInfo struct {
	Asset       string `json:"asset"`
	Divisible   bool   `json:"divisible"`
	Owner       string `json:"owner"`
	Issuer      string `json:"issuer"`
	Callable    bool   `json:"callable"`
	Description string `json:"description"`
}

// RunningInfo is the daemon's get_running_info result.
type RunningInfo struct {
	DBCaughtUp        bool   `json:"db_caught_up"`
	BitcoinBlockCount uint32 `json:"bitcoin_block_count"`
	LastBlock         struct {
		BlockIndex uint32 `json:"block_index"`
		BlockHash  string `json:"block_hash"`
	} `json:"last_block"`
	RunningTestnet bool   `json:"running_testnet"`
	VersionMajor   uint32 `json:"version_major"`
	VersionMinor   uint32 `json:"version_minor"`
}

type filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// Client is a JSON-RPC client for the index daemon.
type Client struct {
	requester RawRequester
	log       gate.Logger
}

// NewClient is the constructor for a Client.
func NewClient(requester RawRequester, log gate.Logger) *Client {
	return &Client{
		requester: requester,
		log:       log,
	}
}

// Connect creates a Client for the daemon at host, which may include a path,
// e.g. localhost:4000/api/.
func Connect(host, user, pass string, log gate.Logger) (*Client, *rpcclient.Client, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         host,
		User:         user,
		Pass:         pass,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating index RPC client: %w", err)
	}
	return NewClient(client, log), client, nil
}

// Compose asks the daemon to compose the named action from the normalized
// parameters, returning the unsigned transaction hex. Daemon errors are
// gate.ErrCompositionFailure with the daemon's message as the detail.
func (c *Client) Compose(ctx context.Context, action string, params map[string]any) (string, error) {
	var txHex string
	if err := c.call(ctx, createPrefix+action, params, &txHex); err != nil {
		return "", gate.NewError(gate.ErrCompositionFailure, rpcErrorMessage(err))
	}
	if txHex == "" {
		return "", gate.NewError(gate.ErrCompositionFailure, "empty transaction returned")
	}
	return txHex, nil
}

// Balances fetches the protocol asset balances of the address.
func (c *Client) Balances(ctx context.Context, addr string) ([]*Balance, error) {
	var bals []*Balance
	params := map[string]any{
		"filters": []*filter{{Field: "address", Op: "==", Value: addr}},
	}
	if err := c.call(ctx, methodGetBalances, params, &bals); err != nil {
		return nil, fmt.Errorf("balances for %s: %w", addr, err)
	}
	return bals, nil
}

// AssetInfo fetches information about an asset. An unknown asset is an error.
func (c *Client) AssetInfo(ctx context.Context, asset string) (*AssetInfo, error) {
	var infos []*AssetInfo
	if err := c.call(ctx, methodGetAssetInfo, map[string]any{"assets": []string{asset}}, &infos); err != nil {
		return nil, fmt.Errorf("asset info for %s: %w", asset, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("asset %s not found", asset)
	}
	return infos[0], nil
}

// BTCPaySource is the address that must pay the base asset side of the order
// match.
func (c *Client) BTCPaySource(ctx context.Context, orderMatchID string) (string, error) {
	return c.source(ctx, methodGetBTCPaySource, "order_match_id", orderMatchID)
}

// CancelSource is the address that placed the offer.
func (c *Client) CancelSource(ctx context.Context, offerHash string) (string, error) {
	return c.source(ctx, methodGetCancelSource, "offer_hash", offerHash)
}

func (c *Client) source(ctx context.Context, method, param, id string) (string, error) {
	var addr string
	if err := c.call(ctx, method, map[string]any{param: id}, &addr); err != nil {
		return "", gate.NewError(gate.ErrInvalidSourceAddress, rpcErrorMessage(err))
	}
	if addr == "" {
		return "", gate.NewError(gate.ErrInvalidSourceAddress, "no source for "+id)
	}
	return addr, nil
}

// RunningInfo fetches the daemon's status.
func (c *Client) RunningInfo(ctx context.Context) (*RunningInfo, error) {
	ri := new(RunningInfo)
	if err := c.call(ctx, methodGetRunningInfo, map[string]any{}, ri); err != nil {
		return nil, err
	}
	return ri, nil
}

// call sends the request with its single object parameter and unmarshals the
// result into thing.
func (c *Client) call(ctx context.Context, method string, params map[string]any, thing any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := json.Marshal(params)
	if err != nil {
		return err
	}
	c.log.Tracef("index RPC %s %s", method, p)
	b, err := c.requester.RawRequest(method, []json.RawMessage{p})
	if err != nil {
		return fmt.Errorf("rawrequest error: %w", err)
	}
	if thing != nil {
		return json.Unmarshal(b, thing)
	}
	return nil
}

func rpcErrorMessage(err error) string {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return err.Error()
}
