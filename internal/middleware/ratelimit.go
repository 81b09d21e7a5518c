package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/classfit/gym-class-reservation/internal/config"
)

// Token bucket state lives in Redis so every instance sees the same budget.
// The script refills lazily from the elapsed time, spends one token, and
// reports how long to wait when the bucket is dry.
var bucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local interval_ms = tonumber(ARGV[3])
    local ttl_s = tonumber(ARGV[4])

    local state = redis.call('HMGET', key, 'tokens', 'refilled_ms')
    local tokens = tonumber(state[1])
    local refilled = tonumber(state[2])
    if tokens == nil or refilled == nil then
        tokens = capacity
        refilled = now_ms
    end

    local gained = math.floor((now_ms - refilled) / interval_ms)
    if gained > 0 then
        tokens = math.min(capacity, tokens + gained)
        refilled = refilled + gained * interval_ms
    end

    local allowed = 0
    local retry_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_ms = math.max(0, interval_ms - (now_ms - refilled))
    end

    redis.call('HMSET', key, 'tokens', tokens, 'refilled_ms', refilled)
    redis.call('EXPIRE', key, ttl_s)
    return { allowed, tokens, retry_ms }
`)

// NewRateLimiter returns a per-caller token-bucket middleware.  With a Redis
// client the bucket is shared across instances; when rdb is nil, or Redis
// errors mid-flight, it degrades to in-process buckets so a cache outage
// never opens the floodgates entirely.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	local := newLocalBuckets(cfg.LocalRPS, cfg.LocalBurst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg.Prefix, c)

			if rdb == nil {
				if !local.allow(key) {
					return tooMany(c, 1)
				}
				return next(c)
			}

			ctx := c.Request().Context()
			vals, err := bucketScript.Run(ctx, rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillEvery.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(vals) != 3 {
				if !local.allow(key) {
					return tooMany(c, 1)
				}
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))
			if vals[0] != 1 {
				secs := int(math.Ceil(float64(vals[2]) / 1000.0))
				return tooMany(c, secs)
			}
			return next(c)
		}
	}
}

func tooMany(c echo.Context, retryAfter int) error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"error":       "too_many_requests",
		"retry_after": retryAfter,
	})
}

// rateKey buckets callers by client IP and route.  The limiter is installed
// ahead of JWT auth so unauthenticated floods are throttled too, which means
// the IP is the only caller identity available here.
func rateKey(prefix string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{prefix, ip, c.Request().Method + " " + c.Path()}, ":")
}

// localBuckets is the in-process fallback: one x/time/rate limiter per key,
// pruned in the background once idle.
type localBuckets struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	rps     rate.Limit
	burst   int
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalBuckets(rps float64, burst int) *localBuckets {
	lb := &localBuckets{
		entries: make(map[string]*localEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go lb.prune(2*time.Minute, 15*time.Minute)
	return lb
}

func (lb *localBuckets) allow(key string) bool {
	lb.mu.Lock()
	e, ok := lb.entries[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(lb.rps, lb.burst)}
		lb.entries[key] = e
	}
	e.lastSeen = time.Now()
	lb.mu.Unlock()
	return e.lim.Allow()
}

func (lb *localBuckets) prune(every, idleTTL time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-idleTTL)
		lb.mu.Lock()
		for key, e := range lb.entries {
			if e.lastSeen.Before(cutoff) {
				delete(lb.entries, key)
			}
		}
		lb.mu.Unlock()
	}
}
