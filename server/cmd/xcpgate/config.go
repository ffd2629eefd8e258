// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"decred.org/xcpgate/gate"
	gatebtc "decred.org/xcpgate/gate/networks/btc"
	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "xcpgate.conf"
	defaultLogFilename    = "xcpgate.log"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultMaxLogZips     = 16
	defaultHTTPHost       = "127.0.0.1"
	defaultHTTPPort       = "14000"
	defaultIndexRPC       = "localhost:4000/api/"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("xcpgate", false)
)

// gateConf is the validated, immutable application configuration.
type gateConf struct {
	Network gate.Network
	Mode    gate.Mode

	HTTPListen   string
	HTTPUser     string
	HTTPPass     string
	WebRoot      string
	ServeMetrics bool

	ComposerURL  string
	ComposerUser string
	ComposerPass string

	IndexRPC  string
	IndexUser string
	IndexPass string

	// BitcoindConfig is the bitcoin.conf-style file with the wallet RPC
	// credentials. BitcoindSettings override its values.
	BitcoindConfig   string
	BitcoindSettings map[string]string

	MinFee           int64
	Multisig         bool
	PromptWalletPass bool
	PidFile          string

	LogMaker *gate.LoggerMaker
}

type flagsData struct {
	// General application behavior
	AppDataDir  string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, or per-subsystem e.g. GATE=debug,WEB=trace. Use show to list subsystems."`
	MaxLogZips  int    `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 will keep all."`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	PidFile     string `long:"pidfile" description:"File name to store the process ID in."`

	Testnet bool `long:"testnet" description:"Use the test network (default mainnet)"`
	Regtest bool `long:"regtest" description:"Use the regression test network (default mainnet)"`

	Light    bool `long:"light" description:"Light mode. Compose with a remote composer peer and never sign."`
	Composer bool `long:"composer" description:"Composer mode. Compose for light peers. Requests must include a public key."`

	HTTPListen   string `long:"httplisten" description:"HTTP server listen address."`
	HTTPUser     string `long:"httpuser" description:"HTTP basic auth user. Not used in composer mode."`
	HTTPPass     string `long:"httppass" description:"HTTP basic auth password. Not used in composer mode."`
	WebRoot      string `long:"webroot" description:"Directory of static files to serve."`
	ServeMetrics bool   `long:"metrics" description:"Expose Prometheus metrics at /metrics."`

	ComposerURL  string `long:"composerurl" description:"Base URL of the composer peer used in light mode."`
	ComposerUser string `long:"composeruser" description:"Composer peer basic auth user."`
	ComposerPass string `long:"composerpass" description:"Composer peer basic auth password."`

	IndexRPC  string `long:"indexrpc" description:"Index daemon RPC host and path."`
	IndexUser string `long:"indexuser" description:"Index daemon RPC user."`
	IndexPass string `long:"indexpass" description:"Index daemon RPC password."`

	BitcoindConfig     string `long:"bitcoindconfig" description:"Path to a bitcoin.conf with the wallet RPC credentials."`
	BitcoindRPCUser    string `long:"bitcoindrpcuser" description:"bitcoind RPC user. Overrides bitcoindconfig."`
	BitcoindRPCPass    string `long:"bitcoindrpcpass" description:"bitcoind RPC password. Overrides bitcoindconfig."`
	BitcoindRPCConnect string `long:"bitcoindrpcconnect" description:"bitcoind RPC host. Overrides bitcoindconfig."`
	BitcoindRPCPort    string `long:"bitcoindrpcport" description:"bitcoind RPC port. Overrides bitcoindconfig."`

	MinFee           int64 `long:"minfee" description:"Flat order fee in satoshis when no base asset side sets it."`
	Multisig         bool  `long:"multisig" description:"Use multisig data encoding with the source public key."`
	PromptWalletPass bool  `long:"promptwalletpass" description:"Prompt for the wallet passphrase and unlock the wallet at startup."`
}

func defaultFlags() flagsData {
	return flagsData{
		AppDataDir: defaultAppDataDir,
		MaxLogZips: defaultMaxLogZips,
		DebugLevel: defaultLogLevel,
		IndexRPC:   defaultIndexRPC,
		MinFee:     gate.DefaultMinFee,
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// normalizeNetworkAddress checks for a valid local network address format and
// adds default host and port if not present. Invalidates addresses that include
// a protocol identifier.
func normalizeNetworkAddress(a, defaultHost, defaultPort string) (string, error) {
	if strings.Contains(a, "://") {
		return a, fmt.Errorf("address %s contains a protocol identifier, which is not allowed", a)
	}
	if a == "" {
		return defaultHost + ":" + defaultPort, nil
	}
	host, port, err := net.SplitHostPort(a)
	if err != nil {
		if strings.Contains(err.Error(), "missing port in address") {
			normalized := a + ":" + defaultPort
			host, port, err = net.SplitHostPort(normalized)
			if err != nil {
				return a, fmt.Errorf("unable to address %s after port resolution: %v", normalized, err)
			}
		} else {
			return a, fmt.Errorf("unable to normalize address %s: %v", a, err)
		}
	}
	if host == "" {
		host = defaultHost
	}
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port), nil
}

// parseFlags parses the command line args, and the config file they point to
// if any. Command line options take precedence over the config file. The
// returned string is the path of the parsed config file, empty if none.
func parseFlags(args []string) (*flagsData, string, error) {
	// Pre-parse the command line options to see if an alternative config file
	// or the version flag was specified. Any errors aside from the help message
	// error can be ignored here since they will be caught by the final parse
	// below.
	var preCfg flagsData
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	if _, err := preParser.ParseArgs(args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return nil, "", err
		}
	}

	cfg := defaultFlags()
	cfg.ShowVersion = preCfg.ShowVersion
	cfg.DebugLevel = firstNonEmpty(preCfg.DebugLevel, cfg.DebugLevel)
	if cfg.ShowVersion || cfg.DebugLevel == "show" {
		return &cfg, "", nil
	}

	if preCfg.AppDataDir != "" {
		appData, err := filepath.Abs(gate.CleanAndExpandPath(preCfg.AppDataDir))
		if err != nil {
			return nil, "", fmt.Errorf("unable to determine working directory: %w", err)
		}
		cfg.AppDataDir = appData
	}
	configFile := preCfg.ConfigFile
	isDefaultConfigFile := configFile == ""
	if isDefaultConfigFile {
		configFile = filepath.Join(cfg.AppDataDir, defaultConfigFilename)
	} else if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(cfg.AppDataDir, configFile)
	}

	parser := flags.NewParser(&cfg, flags.HelpFlag)
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Non-default config file must exist.
		if !isDefaultConfigFile {
			return nil, "", err
		}
		configFile = ""
	} else {
		if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
			return nil, "", fmt.Errorf("error parsing config file %s: %w", configFile, err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, "", err
	}
	return &cfg, configFile, nil
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// gateConf validates the parsed flags and creates the application config. The
// LogMaker is not set.
func (f *flagsData) gateConf() (*gateConf, error) {
	network := gate.Mainnet
	switch {
	case f.Testnet && f.Regtest:
		return nil, errors.New("both testnet and regtest flags specified")
	case f.Testnet:
		network = gate.Testnet
	case f.Regtest:
		network = gate.Regtest
	}

	mode := gate.ModeFull
	switch {
	case f.Light && f.Composer:
		return nil, errors.New("light and composer modes are mutually exclusive")
	case f.Light:
		mode = gate.ModeLight
	case f.Composer:
		mode = gate.ModeComposer
	}

	if mode == gate.ModeLight {
		if f.ComposerURL == "" {
			return nil, errors.New("light mode requires --composerurl")
		}
		u, err := url.Parse(f.ComposerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid composer URL %q", f.ComposerURL)
		}
		if f.Multisig {
			return nil, errors.New("multisig encoding is chosen by the composer peer in light mode")
		}
	}
	if mode != gate.ModeLight && f.IndexRPC == "" {
		return nil, fmt.Errorf("%s mode requires --indexrpc", mode)
	}
	if mode == gate.ModeComposer && f.PromptWalletPass {
		return nil, errors.New("composer mode does not use a wallet")
	}
	if f.MinFee <= 0 {
		return nil, fmt.Errorf("invalid minimum fee %d", f.MinFee)
	}

	httpListen, err := normalizeNetworkAddress(f.HTTPListen, defaultHTTPHost, defaultHTTPPort)
	if err != nil {
		return nil, err
	}

	bitcoindConfig := f.BitcoindConfig
	if bitcoindConfig == "" && mode != gate.ModeComposer {
		bitcoindConfig = gatebtc.SystemConfigPath()
		if _, err := os.Stat(bitcoindConfig); err != nil {
			bitcoindConfig = ""
		}
	}
	if bitcoindConfig != "" {
		bitcoindConfig = gate.CleanAndExpandPath(bitcoindConfig)
	}

	bitcoindSettings := map[string]string{
		"rpcuser":     f.BitcoindRPCUser,
		"rpcpassword": f.BitcoindRPCPass,
		"rpcconnect":  f.BitcoindRPCConnect,
		"rpcport":     f.BitcoindRPCPort,
	}

	webRoot := f.WebRoot
	if webRoot != "" {
		webRoot = gate.CleanAndExpandPath(webRoot)
	}
	pidFile := f.PidFile
	if pidFile != "" {
		pidFile = gate.CleanAndExpandPath(pidFile)
	}

	return &gateConf{
		Network:      network,
		Mode:         mode,
		HTTPListen:   httpListen,
		HTTPUser:     f.HTTPUser,
		HTTPPass:     f.HTTPPass,
		WebRoot:      webRoot,
		ServeMetrics: f.ServeMetrics,
		ComposerURL:  strings.TrimRight(f.ComposerURL, "/"),
		ComposerUser: f.ComposerUser,
		ComposerPass: f.ComposerPass,
		IndexRPC:     f.IndexRPC,
		IndexUser:    f.IndexUser,
		IndexPass:    f.IndexPass,

		BitcoindConfig:   bitcoindConfig,
		BitcoindSettings: bitcoindSettings,

		MinFee:           f.MinFee,
		Multisig:         f.Multisig,
		PromptWalletPass: f.PromptWalletPass,
		PidFile:          pidFile,
	}, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options, and starts the log rotator.
func loadConfig() (*gateConf, error) {
	f, configFile, err := parseFlags(os.Args[1:])
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	if f.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n",
			appName, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Special show command to list supported subsystems and exit.
	if f.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	cfg, err := f.gateConf()
	if err != nil {
		return nil, err
	}

	// Create the app data directory if it doesn't already exist.
	if err := os.MkdirAll(f.AppDataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	logDir := f.LogDir
	if logDir == "" {
		logDir = filepath.Join(f.AppDataDir, defaultLogDirname)
	} else if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(f.AppDataDir, logDir)
	}
	logDir = filepath.Join(gate.CleanAndExpandPath(logDir), cfg.Network.String())

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used. This creates the LogDir if needed.
	if f.MaxLogZips < 0 {
		f.MaxLogZips = 0
	}
	initLogRotator(filepath.Join(logDir, defaultLogFilename), f.MaxLogZips)

	// Parse, validate, and set debug log level(s).
	cfg.LogMaker, err = parseAndSetDebugLevels(f.DebugLevel)
	if err != nil {
		return nil, err
	}

	if configFile == "" {
		configFile = "NONE (defaults)"
	}
	log.Infof("App data folder: %s", f.AppDataDir)
	log.Infof("Log folder:      %s", logDir)
	log.Infof("Config file:     %s", configFile)

	return cfg, nil
}
