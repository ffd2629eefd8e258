// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/config"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// NetPorts are a set of ports to use with the different networks.
type NetPorts struct {
	Mainnet string
	Testnet string
	Regtest string
}

// RPCPorts are the default bitcoind RPC ports.
var RPCPorts = NetPorts{
	Mainnet: "8332",
	Testnet: "18332",
	Regtest: "18443",
}

const defaultHost = "localhost"

// Config holds the parameters needed to initialize an RPC connection to
// bitcoind. After LoadConfigFromPath or LoadConfigFromSettings, RPCBind holds
// the resolved host:port, with RPCConnect taking precedence for the host and
// a port in RPCBind taking precedence over RPCPort.
type Config struct {
	RPCUser    string `ini:"rpcuser"`
	RPCPass    string `ini:"rpcpassword"`
	RPCBind    string `ini:"rpcbind"`
	RPCPort    int    `ini:"rpcport"`
	RPCConnect string `ini:"rpcconnect"`
}

// LoadConfigFromPath loads the configuration settings from the specified
// bitcoin.conf path.
func LoadConfigFromPath(cfgPath string, network gate.Network, ports NetPorts) (*Config, error) {
	cfg := &Config{}
	if err := config.ParseInto(cfgPath, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return CheckConfig(cfg, cfgPath, network, ports)
}

// LoadConfigFromSettings loads the configuration settings from a settings
// map.
func LoadConfigFromSettings(settings map[string]string, network gate.Network, ports NetPorts) (*Config, error) {
	cfg := &Config{}
	if err := config.Unmapify(settings, cfg); err != nil {
		return nil, fmt.Errorf("error parsing connection settings: %w", err)
	}
	return CheckConfig(cfg, "settings", network, ports)
}

// CheckConfig verifies that credentials are set and resolves RPCBind to a
// host:port.
func CheckConfig(cfg *Config, name string, network gate.Network, ports NetPorts) (*Config, error) {
	if cfg.RPCUser == "" {
		return nil, fmt.Errorf("no rpcuser set in %q config", name)
	}
	if cfg.RPCPass == "" {
		return nil, fmt.Errorf("no rpcpassword set in %q config", name)
	}

	host := defaultHost
	var port string
	switch network {
	case gate.Mainnet:
		port = ports.Mainnet
	case gate.Testnet:
		port = ports.Testnet
	case gate.Regtest:
		port = ports.Regtest
	default:
		return nil, fmt.Errorf("unknown network ID %v", network)
	}

	if cfg.RPCPort != 0 {
		port = strconv.Itoa(cfg.RPCPort)
	}

	if cfg.RPCBind != "" {
		h, p, err := net.SplitHostPort(cfg.RPCBind)
		if err != nil {
			// No port, e.g. "localhost".
			host = cfg.RPCBind
		} else {
			if h != "" {
				host = h
			}
			if p != "" {
				port = p
				if rpcPort, err := strconv.Atoi(p); err == nil {
					cfg.RPCPort = rpcPort
				}
			}
		}
	}

	if cfg.RPCConnect != "" {
		host = cfg.RPCConnect
	}

	cfg.RPCBind = net.JoinHostPort(host, port)
	return cfg, nil
}

// SystemConfigPath is the default bitcoin.conf path.
func SystemConfigPath() string {
	return filepath.Join(btcutil.AppDataDir("bitcoin", false), "bitcoin.conf")
}

// ChainParams returns the chain parameters for the network.
func ChainParams(network gate.Network) (*chaincfg.Params, error) {
	switch network {
	case gate.Mainnet:
		return &chaincfg.MainNetParams, nil
	case gate.Testnet:
		return &chaincfg.TestNet3Params, nil
	case gate.Regtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network ID %v", network)
}
