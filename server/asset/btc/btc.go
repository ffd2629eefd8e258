// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package btc provides the bitcoind wallet RPC client used to look up address
// balances and public keys, and to sign and broadcast composed transactions.
package btc

import (
	"fmt"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/config"
	gatebtc "decred.org/xcpgate/gate/networks/btc"
	"github.com/btcsuite/btcd/rpcclient"
)

// NewRPCClient creates an HTTP POST mode JSON-RPC client for the node
// described by the resolved config.
func NewRPCClient(cfg *gatebtc.Config) (*rpcclient.Client, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         cfg.RPCBind,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating BTC RPC client: %w", err)
	}
	return client, nil
}

// Connect loads the bitcoin.conf-style config at configPath, applies the
// settings overrides, and creates a Wallet. The returned client should be shut
// down by the caller.
func Connect(configPath string, overrides map[string]string, network gate.Network,
	log gate.Logger) (*Wallet, *rpcclient.Client, error) {

	settings := make(map[string]string)
	if configPath != "" {
		fileSettings, err := config.Options(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing %s: %w", configPath, err)
		}
		for k, v := range fileSettings {
			settings[k] = v
		}
	}
	for k, v := range overrides {
		if v != "" {
			settings[k] = v
		}
	}
	cfg, err := gatebtc.LoadConfigFromSettings(settings, network, gatebtc.RPCPorts)
	if err != nil {
		return nil, nil, err
	}
	client, err := NewRPCClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("bitcoind RPC at %s", cfg.RPCBind)
	return NewWallet(client, log), client, nil
}
