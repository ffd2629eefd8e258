// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package webserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"decred.org/xcpgate/gate"
	"golang.org/x/time/rate"
)

// corsMiddleware allows cross-origin requests from any origin, and answers
// preflight OPTIONS requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, X-Requested-With, X-CSRF-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// basicAuth requires the configured HTTP basic auth credentials.
func (s *WebServer) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.pass)) == 1
		if !ok || !userOK || !passOK {
			log.Debugf("Unauthorized request from %s for %s", r.RemoteAddr, r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="xcpgate"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit is the request rate limits for a composer mode server.
type RateLimit struct {
	// GlobalRate and GlobalBurst limit all requests.
	GlobalRate  rate.Limit
	GlobalBurst int
	// IPRate and IPBurst limit requests from a single IP address.
	IPRate  rate.Limit
	IPBurst int
}

var defaultRateLimit = RateLimit{
	GlobalRate:  100,
	GlobalBurst: 1000,
	IPRate:      1,
	IPBurst:     60,
}

// ipRateLimiter is used to track an IP's HTTP request rate.
type ipRateLimiter struct {
	*rate.Limiter
	lastHit time.Time
}

type rateLimiter struct {
	cfg    RateLimit
	global *rate.Limiter
	mtx    sync.Mutex
	ips    map[gate.IPKey]*ipRateLimiter
}

func newRateLimiter(cfg RateLimit) *rateLimiter {
	if cfg.GlobalRate <= 0 || cfg.GlobalBurst <= 0 {
		cfg.GlobalRate, cfg.GlobalBurst = defaultRateLimit.GlobalRate, defaultRateLimit.GlobalBurst
	}
	if cfg.IPRate <= 0 || cfg.IPBurst <= 0 {
		cfg.IPRate, cfg.IPBurst = defaultRateLimit.IPRate, defaultRateLimit.IPBurst
	}
	return &rateLimiter{
		cfg:    cfg,
		global: rate.NewLimiter(cfg.GlobalRate, cfg.GlobalBurst),
		ips:    make(map[gate.IPKey]*ipRateLimiter),
	}
}

// ipLimiter gets the limiter for the IP, creating one if it doesn't exist.
func (l *rateLimiter) ipLimiter(ip gate.IPKey) *ipRateLimiter {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	limiter := l.ips[ip]
	if limiter != nil {
		limiter.lastHit = time.Now()
		return limiter
	}
	limiter = &ipRateLimiter{
		Limiter: rate.NewLimiter(l.cfg.IPRate, l.cfg.IPBurst),
		lastHit: time.Now(),
	}
	l.ips[ip] = limiter
	return limiter
}

// allow applies the global limiter and then the more restrictive IP limiter.
func (l *rateLimiter) allow(ip gate.IPKey) bool {
	if !l.global.Allow() {
		return false
	}
	return l.ipLimiter(ip).Allow()
}

// run periodically removes idle IP limiters until the context is canceled.
func (l *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune(time.Minute)
		case <-ctx.Done():
			return
		}
	}
}

func (l *rateLimiter) prune(idle time.Duration) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for ip, limiter := range l.ips {
		if time.Since(limiter.lastHit) > idle {
			delete(l.ips, ip)
		}
	}
}

// limitRate is rate-limiting middleware for composer mode, where the server
// composes for untrusted light peers.
func (s *WebServer) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(gate.NewIPKey(r.RemoteAddr)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
