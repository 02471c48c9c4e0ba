package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/amishayyadav/lyftr/internal/metrics"
)

const (
	autoBlockThreshold = 10
	autoBlockDuration  = 24 * time.Hour
	violationWindow    = time.Hour
)

// RateLimit is a fixed-window budget for one endpoint.
type RateLimit struct {
	Requests int
	Window   time.Duration
	// Blockable endpoints refuse blocked addresses and count violations toward
	// auto-blocking. The webhook is not blockable: its sender must only ever
	// see the webhook status codes.
	Blockable bool
}

// DefaultLimits keys limits by "METHOD /path".
func DefaultLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"POST /webhook": {Requests: 600, Window: time.Minute},
		"GET /messages": {Requests: 120, Window: time.Minute, Blockable: true},
		"GET /stats":    {Requests: 60, Window: time.Minute, Blockable: true},
	}
}

// Counter is the shared state behind the rate limiter.
type Counter interface {
	// Incr increments key, (re)setting its expiry to ttl, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCounter implements Counter on Redis.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *RedisCounter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool
	Limits           map[string]RateLimit // DefaultLimits when nil
}

// RateLimiter enforces per-endpoint, per-address request budgets. Install it
// per route so it runs after any authentication on that route.
type RateLimiter struct {
	counter   Counter
	limits    map[string]RateLimit
	whitelist []netip.Prefix
	autoBlock bool
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRateLimiter creates a rate limiter. Unparseable whitelist entries are
// logged and skipped.
func NewRateLimiter(counter Counter, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		counter:   counter,
		limits:    cfg.Limits,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
		now:       time.Now,
	}
	if rl.limits == nil {
		rl.limits = DefaultLimits()
	}

	for _, entry := range cfg.Whitelist {
		prefix, err := parseWhitelistEntry(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, prefix)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}

	return rl
}

func parseWhitelistEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.whitelist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP is the host part of RemoteAddr. Proxy headers are honoured only
// through chi's RealIP middleware, which rewrites RemoteAddr upstream.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) findLimit(r *http.Request) (string, RateLimit, bool) {
	endpoint := r.Method + " " + r.URL.Path
	limit, ok := rl.limits[endpoint]
	return endpoint, limit, ok
}

// windowKey names the counter for ip on endpoint in the window containing now.
func windowKey(endpoint, ip string, window time.Duration, now time.Time) (string, time.Time) {
	bucket := now.UnixNano() / int64(window)
	resetAt := time.Unix(0, (bucket+1)*int64(window))
	return fmt.Sprintf("ratelimit:%s:%s:%d", endpoint, ip, bucket), resetAt
}

// Middleware applies the limit configured for the request's endpoint.
// Counter failures are logged and the request is let through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, limit, ok := rl.findLimit(r)
		ip := ClientIP(r)
		if !ok || rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if limit.Blockable && rl.autoBlock && rl.isBlocked(ctx, ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", endpoint).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		key, resetAt := windowKey(endpoint, ip, limit.Window, rl.now())
		count, err := rl.counter.Incr(ctx, key, limit.Window)
		if err != nil {
			rl.logger.Error().Err(err).Str("endpoint", endpoint).Msg("rate limit counter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > int64(limit.Requests) {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", endpoint).
				Int64("count", count).
				Msg("rate limit exceeded")
			if limit.Blockable {
				rl.trackViolation(ctx, ip)
			}

			retry := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) isBlocked(ctx context.Context, ip string) bool {
	blocked, err := rl.counter.Exists(ctx, "blocked:ip:"+ip)
	if err != nil {
		rl.logger.Error().Err(err).Msg("block list unavailable")
		return false
	}
	return blocked
}

// trackViolation blocks ip once it has exceeded limits autoBlockThreshold
// times within violationWindow.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	count, err := rl.counter.Incr(ctx, "violations:ip:"+ip, violationWindow)
	if err != nil {
		rl.logger.Error().Err(err).Msg("violation counter unavailable")
		return
	}
	if count < autoBlockThreshold {
		return
	}

	if err := rl.counter.Set(ctx, "blocked:ip:"+ip, "repeated rate limit violations", autoBlockDuration); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to block IP")
		return
	}
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Msg("IP auto-blocked for repeated violations")
}
