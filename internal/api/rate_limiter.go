package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/address-vault/internal/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// rateLimitWindow is the fixed window over which per-IP limits apply.
const rateLimitWindow = time.Minute

// maxLocalLimiters bounds the in-process per-IP limiter map so a scan
// across many source IPs cannot grow it for the process lifetime.
const maxLocalLimiters = 4096

// RateLimiter enforces a per-client-IP request limit over a fixed
// window. With a Redis client the window is shared across replicas;
// without one it degrades to an in-process limiter.
type RateLimiter struct {
	limit     int
	keyPrefix string

	redis redis.Cmdable

	mu       sync.Mutex
	limiters map[string]*localLimiter
}

// localLimiter pairs a token bucket with its last use, so idle entries
// can be evicted once the map hits maxLocalLimiters.
type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing limit requests per
// minute per client IP. Pass a nil redis client to use the in-process
// fallback.
func NewRateLimiter(redisClient redis.Cmdable, keyPrefix string, limit int) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		keyPrefix: keyPrefix,
		redis:     redisClient,
		limiters:  make(map[string]*localLimiter),
	}
}

// rateLimitResult carries the outcome of one limit check.
type rateLimitResult struct {
	allowed      bool
	remaining    int
	resetSeconds int
}

// check consumes one request slot for the given IP.
func (rl *RateLimiter) check(ctx context.Context, ip string) rateLimitResult {
	if rl.redis != nil {
		result, err := rl.checkRedis(ctx, ip)
		if err == nil {
			return result
		}
		// Redis outage: fall through to the local limiter rather than
		// failing open entirely or blocking all traffic.
	}

	return rl.checkLocal(ip)
}

// checkRedis implements a fixed window with a single atomic INCR; the
// window key expires once per window, so the count resets together with
// the reported reset time.
func (rl *RateLimiter) checkRedis(ctx context.Context, ip string) (rateLimitResult, error) {
	key := fmt.Sprintf("%s:%s", rl.keyPrefix, ip)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return rateLimitResult{}, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
			return rateLimitResult{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = rateLimitWindow
	}

	remaining := rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return rateLimitResult{
		allowed:      count <= int64(rl.limit),
		remaining:    remaining,
		resetSeconds: int(math.Ceil(ttl.Seconds())),
	}, nil
}

// checkLocal uses one token bucket per IP sized to refill the full limit
// over the window.
func (rl *RateLimiter) checkLocal(ip string) rateLimitResult {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		if len(rl.limiters) >= maxLocalLimiters {
			rl.evictStaleLocked(now)
		}
		entry = &localLimiter{
			limiter: rate.NewLimiter(rate.Every(rateLimitWindow/time.Duration(rl.limit)), rl.limit),
		}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	rl.mu.Unlock()

	allowed := limiter.Allow()
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return rateLimitResult{
		allowed:      allowed,
		remaining:    remaining,
		resetSeconds: int(rateLimitWindow.Seconds()),
	}
}

// evictStaleLocked drops buckets idle for a full window. If every entry
// is fresh the map is cleared outright: refilled buckets briefly
// over-admit, which beats unbounded growth. Caller holds mu.
func (rl *RateLimiter) evictStaleLocked(now time.Time) {
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= rateLimitWindow {
			delete(rl.limiters, ip)
		}
	}
	if len(rl.limiters) >= maxLocalLimiters {
		rl.limiters = make(map[string]*localLimiter)
	}
}

// RateLimitMiddleware enforces the limiter before any token logic runs
// and exposes the standard X-RateLimit response headers.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := rl.check(r.Context(), clientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(result.resetSeconds))

			if !result.allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.resetSeconds))
				respondError(w, http.StatusTooManyRequests, types.CodeRateLimitExceeded,
					"rate limit exceeded; please try again later", map[string]interface{}{
						"limit":         rl.limit,
						"reset_seconds": result.resetSeconds,
					})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
