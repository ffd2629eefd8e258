// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

//go:build !live

package composer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
	"decred.org/xcpgate/server/index"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	tAddr1  = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	tAddr2  = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
	tPubKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	tTxHex  = "0100000001abcdef"
)

var (
	tCtx    = context.Background()
	tLogger = gate.StdOutLogger("T", gate.LevelTrace)
	tNow    = time.Unix(1700000000, 0)
)

type tComposeCall struct {
	action string
	params map[string]any
}

type tIndex struct {
	mtx        sync.Mutex
	calls      []*tComposeCall
	composeErr error
	assets     map[string]*index.AssetInfo
	balances   map[string][]*index.Balance
	sources    map[string]string
}

func newTIndex() *tIndex {
	return &tIndex{
		assets: map[string]*index.AssetInfo{
			"BBBB": {Asset: "BBBB"},
			"DIVV": {Asset: "DIVV", Divisible: true},
		},
		balances: make(map[string][]*index.Balance),
		sources:  make(map[string]string),
	}
}

func (idx *tIndex) AssetInfo(_ context.Context, asset string) (*index.AssetInfo, error) {
	ai, found := idx.assets[asset]
	if !found {
		return nil, errors.New("asset not found")
	}
	return ai, nil
}

func (idx *tIndex) Compose(_ context.Context, actionName string, params map[string]any) (string, error) {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	idx.calls = append(idx.calls, &tComposeCall{actionName, params})
	if idx.composeErr != nil {
		return "", idx.composeErr
	}
	return tTxHex, nil
}

func (idx *tIndex) lastCall() *tComposeCall {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	if len(idx.calls) == 0 {
		return nil
	}
	return idx.calls[len(idx.calls)-1]
}

func (idx *tIndex) numCalls() int {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	return len(idx.calls)
}

func (idx *tIndex) Balances(_ context.Context, addr string) ([]*index.Balance, error) {
	return idx.balances[addr], nil
}

func (idx *tIndex) BTCPaySource(_ context.Context, id string) (string, error) {
	return idx.source(id)
}

func (idx *tIndex) CancelSource(_ context.Context, hash string) (string, error) {
	return idx.source(hash)
}

func (idx *tIndex) source(id string) (string, error) {
	addr, found := idx.sources[id]
	if !found {
		return "", gate.ErrInvalidSourceAddress
	}
	return addr, nil
}

type tWallet struct {
	pubKeys map[string]string
	lookups []string
}

func (w *tWallet) PubKey(_ context.Context, addr string) (string, error) {
	w.lookups = append(w.lookups, addr)
	pk, found := w.pubKeys[addr]
	if !found {
		return "", errors.New("address not found in wallet")
	}
	return pk, nil
}

func newTWallet() *tWallet {
	return &tWallet{pubKeys: map[string]string{tAddr1: tPubKey}}
}

func mustParse(t *testing.T, name string, vals url.Values) action.Action {
	t.Helper()
	a, err := action.Parse(name, vals)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return a
}

func sendValues() url.Values {
	return url.Values{
		"source":      {tAddr1},
		"destination": {tAddr2},
		"quantity":    {"1.25"},
		"asset":       {"XCP"},
	}
}

func newLocal(t *testing.T, idx *tIndex, mode gate.Mode, w PubKeyer, multisig bool) *LocalComposer {
	t.Helper()
	c, err := NewLocalComposer(&LocalConfig{
		Index:    idx,
		Wallet:   w,
		Mode:     mode,
		MinFee:   gate.DefaultMinFee,
		Multisig: multisig,
		Logger:   tLogger,
		Now:      func() time.Time { return tNow },
	})
	if err != nil {
		t.Fatalf("NewLocalComposer error: %v", err)
	}
	return c
}

func TestLocalCompose(t *testing.T) {
	idx := newTIndex()
	c := newLocal(t, idx, gate.ModeFull, nil, false)

	res, err := c.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if !res.Success || res.Message != tTxHex {
		t.Fatalf("wrong result %+v", res)
	}
	call := idx.lastCall()
	if call.action != action.NameSend || call.params["quantity"] != int64(125000000) {
		t.Fatalf("wrong compose call %+v", call)
	}
	if call.params["encoding"] != encodingAuto {
		t.Fatalf("wrong encoding %v", call.params["encoding"])
	}
	if _, found := call.params["pubkey"]; found {
		t.Fatalf("pubkey set without multisig")
	}

	// Index errors are passed through.
	idx.composeErr = gate.NewError(gate.ErrCompositionFailure, "insufficient funds")
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())}); !errors.Is(err, gate.ErrCompositionFailure) {
		t.Fatalf("wrong error %v", err)
	}
}

func TestLocalComposeNormalization(t *testing.T) {
	idx := newTIndex()
	c := newLocal(t, idx, gate.ModeFull, nil, false)

	// Too many decimal places for a divisible asset.
	vals := sendValues()
	vals.Set("quantity", "0.123456789")
	_, err := c.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, vals)})
	if !errors.Is(err, gate.ErrInvalidNumericValue) {
		t.Fatalf("expected ErrInvalidNumericValue, got %v", err)
	}
	if idx.lastCall() != nil {
		t.Fatalf("composed with invalid quantity")
	}

	// Fractional indivisible asset.
	vals = sendValues()
	vals.Set("asset", "BBBB")
	vals.Set("quantity", "1.5")
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, vals)}); !errors.Is(err, gate.ErrInvalidNumericValue) {
		t.Fatalf("expected ErrInvalidNumericValue, got %v", err)
	}

	// Issuance uses its own divisibility.
	iss := url.Values{
		"source":               {tAddr1},
		"transfer_destination": {tAddr2},
		"asset_name":           {"NEWASSET"},
		"quantity":             {"3"},
		"divisible":            {"0"},
		"callable":             {"0"},
		"call_date":            {"0"},
		"call_price":           {"0"},
		"description":          {"desc"},
	}
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameIssuance, iss)}); err != nil {
		t.Fatalf("issuance Compose error: %v", err)
	}
	if q := idx.lastCall().params["quantity"]; q != int64(3) {
		t.Fatalf("wrong indivisible issuance quantity %v", q)
	}

	// Dividend quantity uses the dividend asset.
	div := url.Values{
		"source":             {tAddr1},
		"asset":              {"BBBB"},
		"quantity_per_share": {"0.5"},
		"dividend_asset":     {"DIVV"},
	}
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameDividend, div)}); err != nil {
		t.Fatalf("dividend Compose error: %v", err)
	}
	if q := idx.lastCall().params["quantity_per_share"]; q != int64(50000000) {
		t.Fatalf("wrong dividend quantity %v", q)
	}

	// Broadcasts are timestamped now.
	bc := url.Values{"source": {tAddr1}, "text": {"t"}, "value": {"-2"}, "fee_fraction": {"0"}}
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameBroadcast, bc)}); err != nil {
		t.Fatalf("broadcast Compose error: %v", err)
	}
	if ts := idx.lastCall().params["timestamp"]; ts != tNow.Unix() {
		t.Fatalf("wrong timestamp %v", ts)
	}
}

func TestLocalComposeOrderFees(t *testing.T) {
	idx := newTIndex()
	c := newLocal(t, idx, gate.ModeFull, nil, false)
	order := url.Values{
		"source":                {tAddr1},
		"give_quantity":         {"1"},
		"give_asset":            {"BTC"},
		"get_quantity":          {"100"},
		"get_asset":             {"XCP"},
		"expiration":            {"10"},
		"fee_fraction_required": {"0"},
		"fee_fraction_provided": {"0.00001"},
	}
	_, err := c.Compose(tCtx, &Request{Action: mustParse(t, action.NameOrder, order)})
	if !errors.Is(err, gate.ErrInsufficientFee) {
		t.Fatalf("expected ErrInsufficientFee, got %v", err)
	}
	if idx.lastCall() != nil {
		t.Fatalf("composed with insufficient fee")
	}

	order.Set("fee_fraction_provided", "0.001")
	if _, err = c.Compose(tCtx, &Request{Action: mustParse(t, action.NameOrder, order)}); err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	call := idx.lastCall()
	if call.params["fee_provided"] != int64(100000) || call.params["fee_required"] != int64(0) {
		t.Fatalf("wrong fees %v", call.params)
	}
	if call.params["give_quantity"] != int64(100000000) || call.params["expiration"] != uint32(10) {
		t.Fatalf("wrong order params %v", call.params)
	}
}

func TestLocalComposeMultisig(t *testing.T) {
	idx := newTIndex()
	idx.sources["match1"] = tAddr1
	w := newTWallet()
	c := newLocal(t, idx, gate.ModeFull, w, true)

	a := mustParse(t, action.NameBTCPay, url.Values{"order_match_id": {"match1"}})
	if _, err := c.Compose(tCtx, &Request{Action: a}); err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	call := idx.lastCall()
	if call.params["pubkey"] != tPubKey || call.params["encoding"] != encodingMultisig {
		t.Fatalf("multisig params not set: %v", call.params)
	}
	if len(w.lookups) != 1 || w.lookups[0] != tAddr1 {
		t.Fatalf("wrong pubkey lookups %v", w.lookups)
	}

	vals := sendValues()
	vals.Set("source", tAddr2)
	if _, err := c.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, vals)}); !errors.Is(err, gate.ErrCompositionFailure) {
		t.Fatalf("expected ErrCompositionFailure for unknown address, got %v", err)
	}
}

func TestComposerModeRequiresPubKey(t *testing.T) {
	idx := newTIndex()
	c := newLocal(t, idx, gate.ModeComposer, nil, false)
	a := mustParse(t, action.NameSend, sendValues())
	_, err := c.Compose(tCtx, &Request{Action: a})
	var gErr gate.Error
	if !errors.As(err, &gErr) || gErr.Detail() != "Source pubkey required" {
		t.Fatalf("wrong error %v", err)
	}
	if idx.lastCall() != nil {
		t.Fatalf("composed without pubkey")
	}

	if _, err = c.Compose(tCtx, &Request{Action: a, PubKey: tPubKey}); err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if idx.lastCall().params["pubkey"] != tPubKey {
		t.Fatalf("pubkey not passed")
	}
}

func TestLocalAddressInfo(t *testing.T) {
	idx := newTIndex()
	idx.balances[tAddr1] = []*index.Balance{
		{Address: tAddr1, Asset: "XCP", Quantity: 150000000},
		{Address: tAddr1, Asset: "BBBB", Quantity: 7},
	}
	c := newLocal(t, idx, gate.ModeFull, nil, false)
	ai, err := c.AddressInfo(tCtx, tAddr1)
	if err != nil {
		t.Fatalf("AddressInfo error: %v", err)
	}
	if len(ai.Balances) != 2 {
		t.Fatalf("wrong balance count %d", len(ai.Balances))
	}
	if b := ai.Balances[0]; !b.Divisible || b.Amount.String() != "1.50000000" {
		t.Fatalf("wrong XCP balance %+v", b)
	}
	if b := ai.Balances[1]; b.Divisible || b.Amount.String() != "7" {
		t.Fatalf("wrong BBBB balance %+v", b)
	}
}

// tPeer is a composer peer backed by a composer mode LocalComposer.
type tPeer struct {
	*httptest.Server
	composer *LocalComposer
	user     string
	pass     string
	down     atomic.Bool
}

func newTPeer(t *testing.T, idx *tIndex, user, pass string) *tPeer {
	p := &tPeer{
		composer: newLocal(t, idx, gate.ModeComposer, nil, false),
		user:     user,
		pass:     pass,
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

func (p *tPeer) serve(w http.ResponseWriter, r *http.Request) {
	if p.down.Load() {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	if p.user != "" {
		if user, pass, ok := r.BasicAuth(); !ok || user != p.user || pass != p.pass {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	writeJSON := func(thing any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(thing)
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/action":
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vals := url.Values{}
		for k, v := range body {
			vals.Set(k, v)
		}
		a, err := action.Parse(body["action"], vals)
		if err != nil {
			writeJSON(&TxResult{Message: err.Error()})
			return
		}
		res, err := p.composer.Compose(r.Context(), &Request{Action: a, PubKey: body["pubkey"]})
		if err != nil {
			writeJSON(&TxResult{Message: err.Error()})
			return
		}
		writeJSON(res)
	case len(parts) == 3 && parts[2] == "source":
		addr, err := p.composer.Source(r.Context(), parts[0], parts[1])
		if err != nil {
			writeJSON(&TxResult{Message: err.Error()})
			return
		}
		writeJSON(&TxResult{Success: true, Message: addr})
	case len(parts) == 2 && parts[0] == "addresses":
		ai, err := p.composer.AddressInfo(r.Context(), parts[1])
		if err != nil {
			writeJSON(&TxResult{Message: err.Error()})
			return
		}
		writeJSON(map[string]any{"success": true, "message": ai})
	default:
		http.NotFound(w, r)
	}
}

func newProxy(t *testing.T, peerURL string, w PubKeyer) *ProxyComposer {
	t.Helper()
	c, err := NewProxyComposer(&ProxyConfig{
		URL:    peerURL,
		User:   "u",
		Pass:   "p",
		Wallet: w,
		Params: &chaincfg.MainNetParams,
		Logger: tLogger,
	})
	if err != nil {
		t.Fatalf("NewProxyComposer error: %v", err)
	}
	return c
}

func TestModeEquivalence(t *testing.T) {
	fullIdx := newTIndex()
	full := newLocal(t, fullIdx, gate.ModeFull, nil, false)

	peerIdx := newTIndex()
	peer := newTPeer(t, peerIdx, "u", "p")
	light := newProxy(t, peer.URL, newTWallet())

	a := mustParse(t, action.NameSend, sendValues())
	fullRes, err := full.Compose(tCtx, &Request{Action: a})
	if err != nil {
		t.Fatalf("full Compose error: %v", err)
	}
	lightRes, err := light.Compose(tCtx, &Request{Action: a})
	if err != nil {
		t.Fatalf("light Compose error: %v", err)
	}
	if !reflect.DeepEqual(fullRes, lightRes) {
		t.Fatalf("results differ: %+v vs %+v", fullRes, lightRes)
	}

	intent := func(call *tComposeCall) map[string]any {
		m := make(map[string]any, len(call.params))
		for k, v := range call.params {
			if k != "pubkey" && k != "encoding" {
				m[k] = v
			}
		}
		return m
	}
	fullCall, peerCall := fullIdx.lastCall(), peerIdx.lastCall()
	if fullCall.action != peerCall.action || !reflect.DeepEqual(intent(fullCall), intent(peerCall)) {
		t.Fatalf("composed intents differ: %v vs %v", fullCall.params, peerCall.params)
	}
	if peerCall.params["pubkey"] != tPubKey {
		t.Fatalf("light mode did not attach the pubkey")
	}
}

func TestProxySource(t *testing.T) {
	peerIdx := newTIndex()
	peerIdx.sources["offer1"] = tAddr1
	peer := newTPeer(t, peerIdx, "", "")
	w := newTWallet()
	light := newProxy(t, peer.URL, w)

	res, err := light.Compose(tCtx, &Request{Action: mustParse(t, action.NameCancel, url.Values{"offer_hash": {"offer1"}})})
	if err != nil || !res.Success {
		t.Fatalf("cancel Compose failed: %+v, %v", res, err)
	}
	if len(w.lookups) != 1 || w.lookups[0] != tAddr1 {
		t.Fatalf("pubkey not fetched for resolved source: %v", w.lookups)
	}

	// Unknown offer.
	_, err = light.Compose(tCtx, &Request{Action: mustParse(t, action.NameCancel, url.Values{"offer_hash": {"nope"}})})
	if err != gate.ErrInvalidSourceAddress || err.Error() != "Invalid source address" {
		t.Fatalf("wrong error %v", err)
	}
	if peerIdx.numCalls() != 1 {
		t.Fatalf("peer composed after failed source lookup")
	}
}

func TestProxyInvalidSource(t *testing.T) {
	peerIdx := newTIndex()
	peer := newTPeer(t, peerIdx, "", "")
	w := newTWallet()
	light := newProxy(t, peer.URL, w)

	vals := sendValues()
	vals.Set("source", "not-an-address")
	_, err := light.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, vals)})
	if !errors.Is(err, gate.ErrInvalidSourceAddress) {
		t.Fatalf("expected ErrInvalidSourceAddress, got %v", err)
	}
	if len(w.lookups) != 0 || peerIdx.lastCall() != nil {
		t.Fatalf("invalid source was not rejected locally")
	}

	// Address not in the wallet.
	vals.Set("source", tAddr2)
	if _, err = light.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, vals)}); !errors.Is(err, gate.ErrCompositionFailure) {
		t.Fatalf("expected ErrCompositionFailure, got %v", err)
	}
}

func TestProxyRemoteUnavailable(t *testing.T) {
	peerIdx := newTIndex()
	peer := newTPeer(t, peerIdx, "", "")
	peer.down.Store(true)
	light := newProxy(t, peer.URL, newTWallet())
	_, err := light.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())})
	if !errors.Is(err, gate.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	peer.down.Store(false)

	// Bad credentials are a non-200 response.
	authPeer := newTPeer(t, newTIndex(), "other", "creds")
	authLight := newProxy(t, authPeer.URL, newTWallet())
	if _, err = authLight.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())}); !errors.Is(err, gate.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable for auth failure, got %v", err)
	}

	// Closed peer.
	peer.Close()
	if _, err = light.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())}); !errors.Is(err, gate.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable for closed peer, got %v", err)
	}
}

func TestProxyPassThrough(t *testing.T) {
	peerIdx := newTIndex()
	peerIdx.composeErr = gate.NewError(gate.ErrCompositionFailure, "insufficient funds")
	peer := newTPeer(t, peerIdx, "", "")
	light := newProxy(t, peer.URL, newTWallet())
	res, err := light.Compose(tCtx, &Request{Action: mustParse(t, action.NameSend, sendValues())})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if res.Success || !strings.Contains(res.Message, "insufficient funds") {
		t.Fatalf("peer failure not passed through: %+v", res)
	}
}

func TestProxyAddressInfo(t *testing.T) {
	peerIdx := newTIndex()
	peerIdx.balances[tAddr1] = []*index.Balance{{Address: tAddr1, Asset: "XCP", Quantity: 1}}
	peer := newTPeer(t, peerIdx, "", "")
	light := newProxy(t, peer.URL, newTWallet())
	ai, err := light.AddressInfo(tCtx, tAddr1)
	if err != nil {
		t.Fatalf("AddressInfo error: %v", err)
	}
	if ai.Address != tAddr1 || len(ai.Balances) != 1 || ai.Balances[0].Amount.String() != "0.00000001" {
		t.Fatalf("wrong address info %+v", ai)
	}
}
