// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"decred.org/xcpgate/gate"
	gatebtc "decred.org/xcpgate/gate/networks/btc"
	"decred.org/xcpgate/server/asset/btc"
	"decred.org/xcpgate/server/composer"
	"decred.org/xcpgate/server/gateway"
	"decred.org/xcpgate/server/index"
	"decred.org/xcpgate/server/metrics"
	"decred.org/xcpgate/server/webserver"
	"golang.org/x/term"
)

const (
	// maxUnlockTimeout is the largest walletpassphrase timeout bitcoind
	// accepts.
	maxUnlockTimeout = 100000000 * time.Second
	// startupTimeout bounds the node and index checks at startup.
	startupTimeout = 30 * time.Second
)

func mainCore(ctx context.Context) error {
	// Parse the configuration file, and setup logger.
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load xcpgate config: %w", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("%s version %v (Go version %s)", appName, Version, runtime.Version())
	log.Infof("xcpgate starting for network %s in %s mode", cfg.Network, cfg.Mode)

	if cfg.PidFile != "" {
		if err := writePidFile(cfg.PidFile); err != nil {
			return err
		}
		defer os.Remove(cfg.PidFile)
	}

	var wallet *btc.Wallet
	if cfg.Mode != gate.ModeComposer {
		var shutdown func()
		wallet, shutdown, err = connectWallet(ctx, cfg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var m *metrics.Metrics
	if cfg.ServeMetrics {
		m = metrics.New(cfg.Mode.String())
	}

	var comp composer.Composer
	switch cfg.Mode {
	case gate.ModeLight:
		params, err := gatebtc.ChainParams(cfg.Network)
		if err != nil {
			return err
		}
		comp, err = composer.NewProxyComposer(&composer.ProxyConfig{
			URL:    cfg.ComposerURL,
			User:   cfg.ComposerUser,
			Pass:   cfg.ComposerPass,
			Wallet: wallet,
			Params: params,
			Logger: logger("COMP"),
		})
		if err != nil {
			return fmt.Errorf("error creating composer peer client: %w", err)
		}
		log.Infof("Composing with peer at %s", cfg.ComposerURL)
	default:
		idx, shutdown, err := connectIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer shutdown()
		localCfg := &composer.LocalConfig{
			Index:    idx,
			Mode:     cfg.Mode,
			MinFee:   cfg.MinFee,
			Multisig: cfg.Multisig,
			Logger:   logger("COMP"),
		}
		// A nil *btc.Wallet must not become a non-nil interface.
		if wallet != nil {
			localCfg.Wallet = wallet
		}
		comp, err = composer.NewLocalComposer(localCfg)
		if err != nil {
			return fmt.Errorf("error creating composer: %w", err)
		}
	}

	gwCfg := &gateway.Config{
		Mode:     cfg.Mode,
		Composer: comp,
		Metrics:  m,
		Logger:   logger("GATE"),
	}
	if wallet != nil {
		gwCfg.Wallet = wallet
	}
	gw, err := gateway.NewGateway(gwCfg)
	if err != nil {
		return err
	}

	srv, err := webserver.New(&webserver.Config{
		Gateway:      gw,
		Addr:         cfg.HTTPListen,
		User:         cfg.HTTPUser,
		Pass:         cfg.HTTPPass,
		WebRoot:      cfg.WebRoot,
		Metrics:      m,
		ServeMetrics: cfg.ServeMetrics,
		Logger:       logger("WEB"),
	})
	if err != nil {
		return fmt.Errorf("error creating web server: %w", err)
	}

	log.Info("The gateway is running. Hit CTRL+C to quit...")
	err = srv.Run(ctx)
	log.Info("Bye!")
	return err
}

// connectWallet connects to bitcoind, checks the node version and, if
// requested, unlocks the wallet with a prompted passphrase.
func connectWallet(ctx context.Context, cfg *gateConf) (*btc.Wallet, func(), error) {
	wallet, client, err := btc.Connect(cfg.BitcoindConfig, cfg.BitcoindSettings, cfg.Network, logger("WLLT"))
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to bitcoind: %w", err)
	}
	shutdown := func() {
		client.Shutdown()
		client.WaitForShutdown()
	}
	checkCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := wallet.CheckNode(checkCtx); err != nil {
		shutdown()
		return nil, nil, err
	}
	if cfg.PromptWalletPass {
		pass, err := passwordPrompt(ctx, "Wallet passphrase: ")
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("cannot use passphrase: %w", err)
		}
		err = wallet.Unlock(checkCtx, pass, maxUnlockTimeout)
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("error unlocking wallet: %w", err)
		}
		log.Info("Wallet unlocked.")
	}
	return wallet, shutdown, nil
}

// connectIndex connects to the index daemon and reports its sync status.
func connectIndex(ctx context.Context, cfg *gateConf) (*index.Client, func(), error) {
	idx, client, err := index.Connect(cfg.IndexRPC, cfg.IndexUser, cfg.IndexPass, logger("INDX"))
	if err != nil {
		return nil, nil, err
	}
	shutdown := func() {
		client.Shutdown()
		client.WaitForShutdown()
	}
	checkCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	info, err := idx.RunningInfo(checkCtx)
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("index daemon at %s is not reachable: %w", cfg.IndexRPC, err)
	}
	if info.RunningTestnet != (cfg.Network == gate.Testnet) {
		log.Warnf("Index daemon testnet = %t, but the gateway network is %s", info.RunningTestnet, cfg.Network)
	}
	if !info.DBCaughtUp {
		log.Warnf("Index daemon is not caught up (block %d of %d). Compositions may be stale.",
			info.LastBlock.BlockIndex, info.BitcoinBlockCount)
	} else {
		log.Infof("Index daemon v%d.%d at block %d", info.VersionMajor, info.VersionMinor, info.LastBlock.BlockIndex)
	}
	return idx, shutdown, nil
}

// passwordPrompt prompts the user to enter a password. The prompt is abandoned
// if the context is canceled.
func passwordPrompt(ctx context.Context, prompt string) (string, error) {
	type result struct {
		pass []byte
		err  error
	}
	resC := make(chan result, 1)
	go func() {
		fmt.Print(prompt)
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		resC <- result{pass, err}
	}()
	select {
	case res := <-resC:
		if res.err != nil {
			return "", res.err
		}
		if len(res.pass) == 0 {
			return "", errors.New("passphrase must not be empty")
		}
		return string(res.pass), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// writePidFile writes the process ID to the file. It is an error if the file
// already exists.
func writePidFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("error creating pid file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fmt.Errorf("error writing pid file: %w", err)
	}
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for interrupt signals (e.g. CTRL+C) and SIGTERM.
	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-killChan
		log.Infof("Shutting down...")
		cancel()
	}()

	if err := mainCore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
