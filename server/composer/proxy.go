// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package composer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
	"decred.org/xcpgate/gate/gatenet"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

const defaultPeerTimeout = 30 * time.Second

// ProxyConfig is the configuration for a ProxyComposer.
type ProxyConfig struct {
	// URL is the composer peer's base URL, e.g. http://composer:14000.
	URL     string
	User    string
	Pass    string
	Wallet  PubKeyer
	Params  *chaincfg.Params
	Timeout time.Duration
	Logger  gate.Logger
}

// ProxyComposer delegates composition to a remote composer peer, adding only
// the source address's public key from the local wallet.
type ProxyComposer struct {
	baseURL string
	user    string
	pass    string
	wallet  PubKeyer
	params  *chaincfg.Params
	client  *http.Client
	log     gate.Logger
}

var _ Composer = (*ProxyComposer)(nil)

// NewProxyComposer is the constructor for a ProxyComposer.
func NewProxyComposer(cfg *ProxyConfig) (*ProxyComposer, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid composer URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("composer URL %q must be http or https", cfg.URL)
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("no wallet")
	}
	if cfg.Params == nil {
		return nil, fmt.Errorf("no chain params")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPeerTimeout
	}
	return &ProxyComposer{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		user:    cfg.User,
		pass:    cfg.Pass,
		wallet:  cfg.Wallet,
		params:  cfg.Params,
		client:  &http.Client{Timeout: timeout},
		log:     cfg.Logger,
	}, nil
}

func (c *ProxyComposer) opts() []*gatenet.RequestOption {
	opts := []*gatenet.RequestOption{gatenet.WithClient(c.client)}
	if c.user != "" || c.pass != "" {
		opts = append(opts, gatenet.WithBasicAuth(c.user, c.pass))
	}
	return opts
}

// Compose resolves and validates the source address, attaches its public key
// and forwards the action to the peer. The peer's result is returned
// unchanged.
func (c *ProxyComposer) Compose(ctx context.Context, req *Request) (*TxResult, error) {
	a := req.Action
	source := a.Source()
	if ref, isRef := sourceRef(a); isRef {
		var err error
		if source, err = c.Source(ctx, a.Name(), ref); err != nil {
			return nil, err
		}
	}
	if _, err := btcutil.DecodeAddress(source, c.params); err != nil {
		c.log.Debugf("Rejecting source %q: %v", source, err)
		return nil, gate.ErrInvalidSourceAddress
	}

	pubKey, err := c.wallet.PubKey(ctx, source)
	if err != nil {
		return nil, gate.NewError(gate.ErrCompositionFailure, err.Error())
	}

	body := map[string]string{
		"action": a.Name(),
		"pubkey": pubKey,
	}
	for k, vs := range a.Values() {
		if len(vs) > 0 {
			body[k] = vs[0]
		}
	}

	res := new(TxResult)
	if err := gatenet.PostJSON(ctx, c.baseURL+"/action", res, body, c.opts()...); err != nil {
		c.log.Errorf("Composer peer request for %s failed: %v", a.Name(), err)
		return nil, gate.NewError(gate.ErrRemoteUnavailable, err.Error())
	}
	return res, nil
}

// Source resolves the source address through the peer's source lookup
// endpoint. Any failure is gate.ErrInvalidSourceAddress.
func (c *ProxyComposer) Source(ctx context.Context, actionName, id string) (string, error) {
	switch actionName {
	case action.NameBTCPay, action.NameCancel:
	default:
		return "", gate.ErrUnknownAction
	}
	uri := fmt.Sprintf("%s/%s/%s/source", c.baseURL, actionName, url.PathEscape(id))
	res := new(TxResult)
	if err := gatenet.Get(ctx, uri, res, c.opts()...); err != nil {
		c.log.Debugf("Source lookup %s failed: %v", uri, err)
		return "", gate.ErrInvalidSourceAddress
	}
	if !res.Success || res.Message == "" {
		return "", gate.ErrInvalidSourceAddress
	}
	return res.Message, nil
}

type addressInfoResult struct {
	Success bool         `json:"success"`
	Message *AddressInfo `json:"message"`
}

// AddressInfo fetches the address's protocol asset balances from the peer.
func (c *ProxyComposer) AddressInfo(ctx context.Context, addr string) (*AddressInfo, error) {
	res := new(addressInfoResult)
	uri := c.baseURL + "/addresses/" + url.PathEscape(addr)
	if err := gatenet.Get(ctx, uri, res, c.opts()...); err != nil {
		return nil, gate.NewError(gate.ErrRemoteUnavailable, err.Error())
	}
	if !res.Success || res.Message == nil {
		return nil, gate.NewError(gate.ErrRemoteUnavailable, "address lookup failed for "+addr)
	}
	return res.Message, nil
}
