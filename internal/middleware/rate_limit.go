package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"refcache/internal/shared/config"
	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

// clientIdleTimeout is how long an unused client limiter is kept.
const clientIdleTimeout = 3 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles API clients per IP.
type RateLimiter struct {
	config  config.RateLimitConfig
	logger  *slog.Logger
	clients map[string]*client
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  cfg,
		logger:  slog.With("middleware", "rate_limit"),
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}

	if cfg.Enabled {
		go rl.cleanupClients()
	}

	return rl
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (rl *RateLimiter) cleanupClients() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > clientIdleTimeout {
			delete(rl.clients, ip)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("Evicted idle rate limit clients", "evicted", evicted, "remaining", len(rl.clients))
	}
	return evicted
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		ip := getClientIP(r, rl.config.TrustProxy)
		limiter := rl.limiterFor(ip, now)

		if !limiter.AllowN(now, 1) {
			logger := rl.logger.With("client_ip", ip)
			w.Header().Set("Retry-After", retryAfter(limiter, now))
			response.Error(w, r, logger, errors.RateLimitedf(
				"rate limit of %.1f requests per second exceeded", rl.config.RequestsPerSecond))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter is the whole number of seconds until the next token, at least 1.
func retryAfter(limiter *rate.Limiter, now time.Time) string {
	missing := 1 - limiter.TokensAt(now)
	seconds := 1.0
	if limit := float64(limiter.Limit()); limit > 0 && missing > 0 {
		seconds = max(math.Ceil(missing/limit), 1)
	}
	return strconv.Itoa(int(seconds))
}

func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
