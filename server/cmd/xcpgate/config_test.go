// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

//go:build !live

package main

import (
	"os"
	"path/filepath"
	"testing"

	"decred.org/xcpgate/gate"
)

func Test_normalizeNetworkAddress(t *testing.T) {
	const defaultHost, defaultPort = "127.0.0.1", "14000"
	tests := []struct {
		listen  string
		want    string
		wantErr bool
	}{
		{
			listen: "[::1]",
			want:   "[::1]:14000",
		},
		{
			listen: "[::]:",
			want:   "[::]:14000",
		},
		{
			listen: "",
			want:   "127.0.0.1:14000",
		},
		{
			listen: "127.0.0.2",
			want:   "127.0.0.2:14000",
		},
		{
			listen: ":7222",
			want:   "127.0.0.1:7222",
		},
		{
			listen:  "http://127.0.0.1:80",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			got, err := normalizeNetworkAddress(tt.listen, defaultHost, defaultPort)
			if (err != nil) != tt.wantErr {
				t.Errorf("normalizeNetworkAddress() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("normalizeNetworkAddress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	appData := t.TempDir()
	conf := "[Application Options]\ncomposer=1\nhttplisten=0.0.0.0:4100\nminfee=5000\nindexuser=file\n"
	if err := os.WriteFile(filepath.Join(appData, defaultConfigFilename), []byte(conf), 0600); err != nil {
		t.Fatal(err)
	}

	f, configFile, err := parseFlags([]string{"--appdata=" + appData, "--indexuser=cli", "--testnet"})
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if configFile != filepath.Join(appData, defaultConfigFilename) {
		t.Fatalf("wrong config file %q", configFile)
	}
	if f.IndexUser != "cli" {
		t.Fatalf("command line did not take precedence, got %q", f.IndexUser)
	}
	cfg, err := f.gateConf()
	if err != nil {
		t.Fatalf("gateConf error: %v", err)
	}
	if cfg.Mode != gate.ModeComposer || cfg.Network != gate.Testnet {
		t.Fatalf("wrong mode %s or network %s", cfg.Mode, cfg.Network)
	}
	if cfg.HTTPListen != "0.0.0.0:4100" || cfg.MinFee != 5000 || cfg.IndexRPC != defaultIndexRPC {
		t.Fatalf("wrong config %+v", cfg)
	}

	// A missing default config file is fine.
	f, configFile, err = parseFlags([]string{"--appdata=" + t.TempDir()})
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if configFile != "" || f.MinFee != gate.DefaultMinFee {
		t.Fatalf("wrong defaults, config file %q, min fee %d", configFile, f.MinFee)
	}

	// A missing non-default config file is not.
	if _, _, err = parseFlags([]string{"--appdata=" + appData, "--configfile=nope.conf"}); err == nil {
		t.Fatalf("no error for missing config file")
	}
}

func TestGateConf(t *testing.T) {
	tests := []struct {
		name    string
		flags   flagsData
		mode    gate.Mode
		wantErr bool
	}{
		{
			name:  "full",
			flags: flagsData{IndexRPC: "localhost:4000", MinFee: 1},
			mode:  gate.ModeFull,
		},
		{
			name:  "light",
			flags: flagsData{Light: true, ComposerURL: "https://composer.example.com/", MinFee: 1},
			mode:  gate.ModeLight,
		},
		{
			name:    "light without peer",
			flags:   flagsData{Light: true, MinFee: 1},
			wantErr: true,
		},
		{
			name:    "light with bad peer URL",
			flags:   flagsData{Light: true, ComposerURL: "ftp://composer", MinFee: 1},
			wantErr: true,
		},
		{
			name:    "light with multisig",
			flags:   flagsData{Light: true, ComposerURL: "http://composer", Multisig: true, MinFee: 1},
			wantErr: true,
		},
		{
			name:    "two modes",
			flags:   flagsData{Light: true, Composer: true, MinFee: 1},
			wantErr: true,
		},
		{
			name:    "two networks",
			flags:   flagsData{Testnet: true, Regtest: true, IndexRPC: "x", MinFee: 1},
			wantErr: true,
		},
		{
			name:    "composer without index",
			flags:   flagsData{Composer: true, MinFee: 1},
			wantErr: true,
		},
		{
			name:    "composer with wallet prompt",
			flags:   flagsData{Composer: true, IndexRPC: "x", PromptWalletPass: true, MinFee: 1},
			wantErr: true,
		},
		{
			name:    "zero fee",
			flags:   flagsData{IndexRPC: "x"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.flags.gateConf()
			if (err != nil) != tt.wantErr {
				t.Fatalf("wrong error %v", err)
			}
			if err == nil && cfg.Mode != tt.mode {
				t.Fatalf("wrong mode %s", cfg.Mode)
			}
		})
	}

	f := flagsData{
		Light:           true,
		ComposerURL:     "http://composer:14000/",
		MinFee:          1,
		BitcoindConfig:  "/tmp/bitcoin.conf",
		BitcoindRPCUser: "user",
	}
	cfg, err := f.gateConf()
	if err != nil {
		t.Fatalf("gateConf error: %v", err)
	}
	if cfg.ComposerURL != "http://composer:14000" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.ComposerURL)
	}
	if cfg.BitcoindSettings["rpcuser"] != "user" || cfg.BitcoindSettings["rpcpassword"] != "" {
		t.Fatalf("wrong bitcoind settings %v", cfg.BitcoindSettings)
	}
}

func TestParseAndSetDebugLevels(t *testing.T) {
	if _, err := parseAndSetDebugLevels("info,GATE=debug,WEB=trace"); err != nil {
		t.Fatalf("error for valid levels: %v", err)
	}
	if logger("GATE").Level() != gate.LevelDebug || logger("MAIN").Level() != gate.LevelInfo {
		t.Fatalf("levels not applied")
	}
	if _, err := parseAndSetDebugLevels("NOPE=debug"); err == nil {
		t.Fatalf("no error for unknown subsystem")
	}
	if _, err := parseAndSetDebugLevels("loud"); err == nil {
		t.Fatalf("no error for unknown level")
	}
}
