// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package webserver is the HTTP surface of the gateway.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"decred.org/xcpgate/gate"
	"decred.org/xcpgate/gate/action"
	"decred.org/xcpgate/server/composer"
	"decred.org/xcpgate/server/gateway"
	"decred.org/xcpgate/server/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// rpcTimeout bounds request reads and response writes. Composition and
	// wallet snapshots may involve many RPCs.
	rpcTimeout = 2 * time.Minute
	// maxBodySize is the largest accepted request body.
	maxBodySize = 1 << 20
)

// Gateway is the gateway backing the web server.
type Gateway interface {
	Mode() gate.Mode
	Submit(ctx context.Context, req *gateway.SubmitRequest) *composer.TxResult
	Source(ctx context.Context, actionName, id string) *composer.TxResult
	AddressInfo(ctx context.Context, addr string) (*composer.AddressInfo, error)
	WalletSnapshot(ctx context.Context) (*gateway.WalletSnapshot, error)
}

// Config is the configuration for a WebServer.
type Config struct {
	Gateway Gateway
	Addr    string
	// User and Pass enable HTTP basic auth in full and light modes.
	User string
	Pass string
	// WebRoot is a directory of static files to serve. Optional.
	WebRoot string
	// Metrics instruments requests. If ServeMetrics is set, the metrics are
	// exposed at /metrics.
	Metrics      *metrics.Metrics
	ServeMetrics bool
	// RateLimit configures the limiter used in composer mode. The zero value
	// uses the defaults.
	RateLimit RateLimit
	Logger    gate.Logger
}

// WebServer is the gateway's HTTP server.
type WebServer struct {
	gw      Gateway
	addr    string
	user    string
	pass    string
	srv     *http.Server
	mux     *chi.Mux
	limiter *rateLimiter
}

var log = gate.Disabled

// New is the constructor for a WebServer.
func New(cfg *Config) (*WebServer, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("no gateway")
	}
	mode := cfg.Gateway.Mode()
	if cfg.WebRoot != "" {
		fi, err := os.Stat(cfg.WebRoot)
		if err != nil {
			return nil, fmt.Errorf("web root %s: %w", cfg.WebRoot, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("web root %s is not a directory", cfg.WebRoot)
		}
	}

	if cfg.Logger != nil {
		log = cfg.Logger
	}

	mux := chi.NewRouter()
	s := &WebServer{
		gw:   cfg.Gateway,
		addr: cfg.Addr,
		user: cfg.User,
		pass: cfg.Pass,
		mux:  mux,
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  rpcTimeout,
			WriteTimeout: rpcTimeout,
		},
	}

	mux.Use(middleware.Recoverer)
	mux.Use(corsMiddleware)
	mux.Use(cfg.Metrics.Instrument)
	switch {
	case mode == gate.ModeComposer:
		s.limiter = newRateLimiter(cfg.RateLimit)
		mux.Use(s.limitRate)
	case cfg.User != "" || cfg.Pass != "":
		mux.Use(s.basicAuth)
	}

	mux.Post("/action", s.handleAction)
	mux.Get("/btcpay/{id}/source", s.handleSource(action.NameBTCPay))
	mux.Get("/cancel/{id}/source", s.handleSource(action.NameCancel))
	mux.Get("/addresses/{address}", s.handleAddress)
	if mode != gate.ModeComposer {
		mux.Get("/wallet", s.handleWallet)
	}
	if cfg.ServeMetrics && cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}
	if cfg.WebRoot != "" {
		fileServer(mux, cfg.WebRoot)
	}
	return s, nil
}

// ServeHTTP serves the request with the router.
func (s *WebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run starts the web server, blocking until the context is canceled or the
// listener fails.
func (s *WebServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("can't listen on %s: %w", s.addr, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Problem shutting down web server: %v", err)
		}
	}()

	if s.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.limiter.run(ctx)
		}()
	}

	log.Infof("Web server listening on http://%s (%s mode)", listener.Addr(), s.gw.Mode())
	err = s.srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else {
		log.Warnf("unexpected (http.Server).Serve error: %v", err)
	}
	wg.Wait()
	log.Infof("Web server off")
	return err
}

// fileServer serves static files from fsRoot. Directory listings are denied,
// and / serves index.html.
func fileServer(r chi.Router, fsRoot string) {
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		upath := r.URL.Path
		if strings.Contains(upath, "..") {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		upath = path.Clean("/" + upath)
		if upath == "/" {
			upath = "/index.html"
		}
		fullFilePath := filepath.Join(fsRoot, filepath.FromSlash(upath))
		fi, err := os.Stat(fullFilePath)
		if err != nil || fi.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, fullFilePath)
	})
}

// writeJSON writes the JSON-encoded thing with status 200.
func writeJSON(w http.ResponseWriter, thing any) {
	writeJSONWithStatus(w, thing, http.StatusOK)
}

// writeJSONWithStatus writes the JSON-encoded thing with the specified HTTP
// status code.
func writeJSONWithStatus(w http.ResponseWriter, thing any, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(thing); err != nil {
		log.Errorf("JSON encode error: %v", err)
	}
}
