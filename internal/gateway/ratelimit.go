package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avivago/avivago-backend/pkg/cache"
	"github.com/avivago/avivago-backend/pkg/errors"
	pkghttp "github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/logger"
)

// Decision is the outcome of a single rate-limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func newDecision(count int64, limit int, resetAt time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// RedisLimiter shares counters across gateway replicas
type RedisLimiter struct {
	client    *redis.Client
	namespace string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter
func NewRedisLimiter(client *redis.Client, namespace string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		namespace: namespace,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Allow increments the counter for key in the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	start := windowStart(l.now(), l.window)
	redisKey := cache.Key(l.namespace, "ratelimit", key, strconv.FormatInt(start.Unix(), 10))

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	return newDecision(count, l.limit, start.Add(l.window)), nil
}

// MemoryLimiter keeps counters in process for single-instance deployments
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	start  time.Time
	counts map[string]int64
	now    func() time.Time
}

// NewMemoryLimiter creates an in-memory fixed-window limiter
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]int64),
		now:    time.Now,
	}
}

// Allow increments the counter for key in the current window
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := windowStart(l.now(), l.window)
	if !start.Equal(l.start) {
		l.start = start
		l.counts = make(map[string]int64)
	}

	l.counts[key]++
	return newDecision(l.counts[key], l.limit, start.Add(l.window)), nil
}

// RateLimit rejects requests over the limit with 429. Authenticated callers
// are counted per user, anonymous ones per client IP. Limiter failures are
// logged and the request is let through.
func RateLimit(limiter Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.ResetAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				log.Debug().Str("key", key).Msg("rate limit exceeded")
				pkghttp.ErrorLocalized(w, r, errors.RateLimited())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if userID := pkghttp.GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
