// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"decred.org/xcpgate/gate"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	methodListAddressGroupings = "listaddressgroupings"
	methodGetAddressInfo       = "getaddressinfo"
	methodUnlock               = "walletpassphrase"
	methodSignTx               = "signrawtransactionwithwallet"
	methodSendRawTransaction   = "sendrawtransaction"
	methodGetNetworkInfo       = "getnetworkinfo"
)

// minNodeVersion is the first bitcoind version with getaddressinfo.
const minNodeVersion = 170000

// RawRequester sends raw JSON-RPC requests. It is satisfied by
// *rpcclient.Client. A stub can be used for testing.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// AddressBalance is an entry of an address grouping.
type AddressBalance struct {
	Address string
	Amount  btcutil.Amount
	Label   string
}

// SignTxError is an error reported for a single input by
// signrawtransactionwithwallet.
type SignTxError struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ScriptSig string `json:"scriptSig"`
	Sequence  uint32 `json:"sequence"`
	Error     string `json:"error"`
}

// SignTxResult is the result of signrawtransactionwithwallet.
type SignTxResult struct {
	Hex      string         `json:"hex"`
	Complete bool           `json:"complete"`
	Errors   []*SignTxError `json:"errors"`
}

// GetAddressInfoResult is the subset of the getaddressinfo result used by the
// gateway.
type GetAddressInfoResult struct {
	Address string `json:"address"`
	IsMine  bool   `json:"ismine"`
	PubKey  string `json:"pubkey"`
}

// Wallet is a bitcoind wallet RPC client.
type Wallet struct {
	requester RawRequester
	log       gate.Logger
}

// NewWallet is the constructor for a Wallet.
func NewWallet(requester RawRequester, log gate.Logger) *Wallet {
	return &Wallet{
		requester: requester,
		log:       log,
	}
}

// anylist is a list of RPC parameters to be converted to []json.RawMessage and
// sent via RawRequest.
type anylist []any

// AddressGroupings lists the wallet's address groupings. Each entry in a
// grouping is an address and its base asset balance.
func (w *Wallet) AddressGroupings(ctx context.Context) ([][]*AddressBalance, error) {
	var raw [][][]json.RawMessage
	if err := w.call(ctx, methodListAddressGroupings, nil, &raw); err != nil {
		return nil, err
	}
	groupings := make([][]*AddressBalance, 0, len(raw))
	for _, rawGroup := range raw {
		group := make([]*AddressBalance, 0, len(rawGroup))
		for _, entry := range rawGroup {
			ab, err := w.decodeGroupingEntry(entry)
			if err != nil {
				return nil, err
			}
			group = append(group, ab)
		}
		groupings = append(groupings, group)
	}
	return groupings, nil
}

// decodeGroupingEntry decodes an [address, amount, label?] tuple. A label that
// is not a string is logged and left empty.
func (w *Wallet) decodeGroupingEntry(entry []json.RawMessage) (*AddressBalance, error) {
	if len(entry) < 2 {
		return nil, fmt.Errorf("malformed address grouping entry with %d elements", len(entry))
	}
	ab := new(AddressBalance)
	if err := json.Unmarshal(entry[0], &ab.Address); err != nil {
		return nil, fmt.Errorf("error decoding grouping address: %w", err)
	}
	var btc float64
	if err := json.Unmarshal(entry[1], &btc); err != nil {
		return nil, fmt.Errorf("error decoding balance of %s: %w", ab.Address, err)
	}
	amt, err := btcutil.NewAmount(btc)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %f for %s: %w", btc, ab.Address, err)
	}
	ab.Amount = amt
	if len(entry) > 2 {
		if err := json.Unmarshal(entry[2], &ab.Label); err != nil {
			ab.Label = ""
			w.log.Tracef("Ignoring label %.32s for %s: %v", entry[2], ab.Address, err)
		}
	}
	return ab, nil
}

// PubKey fetches the hex-encoded public key for a wallet address.
func (w *Wallet) PubKey(ctx context.Context, addr string) (string, error) {
	ai := new(GetAddressInfoResult)
	if err := w.call(ctx, methodGetAddressInfo, anylist{addr}, ai); err != nil {
		return "", err
	}
	if ai.PubKey == "" {
		return "", fmt.Errorf("no public key known for address %s", addr)
	}
	return ai.PubKey, nil
}

// Unlock unlocks the wallet for the specified duration.
func (w *Wallet) Unlock(ctx context.Context, pass string, timeout time.Duration) error {
	secs := int64(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return w.call(ctx, methodUnlock, anylist{pass, secs}, nil)
}

// SignTx has the wallet sign the inputs of the hex-encoded transaction. The
// signed transaction is returned hex-encoded.
func (w *Wallet) SignTx(ctx context.Context, txHex string) (string, error) {
	if _, err := msgTxFromHex(txHex); err != nil {
		return "", fmt.Errorf("invalid unsigned transaction: %w", err)
	}
	res := new(SignTxResult)
	if err := w.call(ctx, methodSignTx, anylist{txHex}, res); err != nil {
		return "", fmt.Errorf("tx signing error: %w", err)
	}
	if !res.Complete {
		errMsgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			errMsgs = append(errMsgs, e.Error)
		}
		return "", fmt.Errorf("signing incomplete. %d signing errors encountered: %s",
			len(res.Errors), strings.Join(errMsgs, ";"))
	}
	if _, err := msgTxFromHex(res.Hex); err != nil {
		return "", fmt.Errorf("error deserializing signed transaction: %w", err)
	}
	return res.Hex, nil
}

// SendRawTransaction broadcasts the hex-encoded signed transaction.
func (w *Wallet) SendRawTransaction(ctx context.Context, txHex string) (*chainhash.Hash, error) {
	var txid string
	if err := w.call(ctx, methodSendRawTransaction, anylist{txHex}, &txid); err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(txid)
}

// SignAndSend signs and broadcasts the unsigned transaction. If pass is not
// empty, the wallet is first unlocked with it. Failures before broadcast are
// gate.ErrSigningFailure, and broadcast failures are gate.ErrBroadcastFailure.
func (w *Wallet) SignAndSend(ctx context.Context, unsignedHex, pass string) (*chainhash.Hash, error) {
	if pass != "" {
		if err := w.Unlock(ctx, pass, time.Minute); err != nil {
			return nil, gate.NewError(gate.ErrSigningFailure, "unable to unlock wallet: "+rpcErrorMessage(err))
		}
	}
	signed, err := w.SignTx(ctx, unsignedHex)
	if err != nil {
		return nil, gate.NewError(gate.ErrSigningFailure, rpcErrorMessage(err))
	}
	txHash, err := w.SendRawTransaction(ctx, signed)
	if err != nil {
		return nil, gate.NewError(gate.ErrBroadcastFailure, rpcErrorMessage(err))
	}
	w.log.Infof("Broadcast transaction %s", txHash)
	return txHash, nil
}

// NetworkInfo fetches the node's getnetworkinfo result.
func (w *Wallet) NetworkInfo(ctx context.Context) (*btcjson.GetNetworkInfoResult, error) {
	res := new(btcjson.GetNetworkInfoResult)
	return res, w.call(ctx, methodGetNetworkInfo, nil, res)
}

// CheckNode verifies that the node is reachable and new enough to provide
// public keys through getaddressinfo.
func (w *Wallet) CheckNode(ctx context.Context) error {
	info, err := w.NetworkInfo(ctx)
	if err != nil {
		return fmt.Errorf("getnetworkinfo error: %w", err)
	}
	if info.Version < minNodeVersion {
		return fmt.Errorf("bitcoind version %d is too old, need at least %d", info.Version, minNodeVersion)
	}
	w.log.Infof("Connected to bitcoind %s (protocol %d)", info.SubVersion, info.ProtocolVersion)
	return nil
}

// call is used internally to marshal parameters and send requests to the RPC
// server via (*rpcclient.Client).RawRequest. If thing is non-nil, the result
// will be unmarshaled into thing.
func (w *Wallet) call(ctx context.Context, method string, args anylist, thing any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := make([]json.RawMessage, 0, len(args))
	for i := range args {
		p, err := json.Marshal(args[i])
		if err != nil {
			return err
		}
		params = append(params, p)
	}
	w.log.Tracef("wallet RPC %s", method)
	b, err := w.requester.RawRequest(method, params)
	if err != nil {
		return fmt.Errorf("rawrequest error: %w", err)
	}
	if thing != nil {
		return json.Unmarshal(b, thing)
	}
	return nil
}

// rpcErrorMessage extracts the node's message from an RPC error.
func rpcErrorMessage(err error) string {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return err.Error()
}

// msgTxFromHex creates a wire.MsgTx by deserializing the hex-encoded
// transaction.
func msgTxFromHex(txHex string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return msgTx, nil
}
