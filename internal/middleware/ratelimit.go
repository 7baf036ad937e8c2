package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a fixed window limiter keyed by client IP.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*window
	rate      int
	window    time.Duration
	whitelist map[string]struct{}
	now       func() time.Time
	onBlocked func(ip string)
	logger    *slog.Logger
}

type window struct {
	remaining int
	start     time.Time
}

type RateLimitOptions struct {
	Rate      int
	Window    time.Duration
	Whitelist []string
	// OnBlocked is called for every rejected request.
	OnBlocked func(ip string)
	Now       func() time.Time
}

func NewRateLimiter(opts RateLimitOptions, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(opts.Whitelist))
	for _, ip := range opts.Whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}
	if opts.Rate <= 0 {
		opts.Rate = 120
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &RateLimiter{
		clients:   make(map[string]*window),
		rate:      opts.Rate,
		window:    opts.Window,
		whitelist: wl,
		now:       opts.Now,
		onBlocked: opts.OnBlocked,
		logger:    logger.With("component", "rate_limiter"),
	}
}

// Run evicts idle clients every two windows until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	evicted := 0
	for ip, w := range rl.clients {
		if now.Sub(w.start) > rl.window*2 {
			delete(rl.clients, ip)
			evicted++
		}
	}
	return evicted
}

func (rl *RateLimiter) IsWhitelisted(ip string) bool {
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow reports whether the request may proceed and, if not, how long until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.clients[ip]
	if !exists || now.Sub(w.start) >= rl.window {
		rl.clients[ip] = &window{remaining: rl.rate - 1, start: now}
		return true, 0
	}

	if w.remaining > 0 {
		w.remaining--
		return true, 0
	}
	return false, w.start.Add(rl.window).Sub(now)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.IsWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ok, retry := rl.Allow(ip)
		if !ok {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			if rl.onBlocked != nil {
				rl.onBlocked(ip)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rl *RateLimiter) TrackedClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
