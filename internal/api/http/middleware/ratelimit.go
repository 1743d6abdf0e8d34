package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/banking/refdata-service/internal/cache"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/resilience"
)

var errNoSharedLimiter = errors.New("shared rate limiter not configured")

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerClientPerMinute     int
	PerIPPerMinute         int
	BurstSize              int
	EnableInMemoryFallback bool
}

// RateLimiter applies fixed-window limits shared through Redis, per
// authenticated client or per IP for anonymous callers. While Redis is
// unreachable each instance enforces the same allowance with local token
// buckets.
type RateLimiter struct {
	redis *redis.Client
	cb    *resilience.CircuitBreaker
	cfg   RateLimitConfig
	log   *logger.Logger
	local *localLimiter
}

// NewRateLimiter creates a new rate limiter. redisClient may be nil, in which
// case only the in-memory limiter is used.
func NewRateLimiter(redisClient *redis.Client, cb *resilience.CircuitBreaker, cfg RateLimitConfig, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &RateLimiter{
		redis: redisClient,
		cb:    cb,
		cfg:   cfg,
		log:   log.Named("ratelimit"),
		local: newLocalLimiter(maxLocalBuckets),
	}
}

// RateLimit middleware applies rate limiting
func (rl *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Determine the rate limit key and limit
			key, limit, window := rl.getRateLimitParams(c)

			// Check rate limit
			allowed, remaining, resetAt, err := rl.checkRateLimit(c.Request().Context(), key, limit, window)
			if err != nil {
				// Fail open: a broken limiter must not take lookups down
				rl.log.Warn("rate limiter error", logger.ErrorField(err))
			}

			// Set rate limit headers
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

			if !allowed {
				retryAfter := resetAt - time.Now().Unix()
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				rl.log.Debug("rate limit exceeded", zap.String("key", key))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}

// getRateLimitParams picks the bucket. Authenticated clients get their own
// (higher) limit; everyone else is limited per IP. BurstSize is added on top
// of the per-minute allowance.
func (rl *RateLimiter) getRateLimitParams(c echo.Context) (key string, limit int, window time.Duration) {
	window = time.Minute

	// If authenticated, use per-client limiting
	if subject, ok := GetSubjectFromEcho(c); ok {
		return "v1:ratelimit:client:" + subject, rl.cfg.PerClientPerMinute + rl.cfg.BurstSize, window
	}
	// Default: per-IP limiting
	return "v1:ratelimit:ip:" + c.RealIP(), rl.cfg.PerIPPerMinute + rl.cfg.BurstSize, window
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt int64, err error) {
	// Try Redis first
	if rl.redis != nil && rl.cb != nil {
		r, redisErr := resilience.Call(ctx, rl.cb, func(ctx context.Context) (*rateLimitResult, error) {
			return rl.checkRedisRateLimit(ctx, key, limit, window)
		})
		if redisErr == nil {
			return r.allowed, r.remaining, r.resetAt, nil
		}
		err = redisErr
	} else {
		err = errNoSharedLimiter
	}

	// Fallback to the in-memory limiter if Redis is down
	if rl.cfg.EnableInMemoryFallback {
		return rl.local.check(key, limit, window)
	}

	// No fallback: allow the request
	return true, limit - 1, time.Now().Add(window).Unix(), err
}

type rateLimitResult struct {
	allowed   bool
	remaining int
	resetAt   int64
}

func (rl *RateLimiter) checkRedisRateLimit(ctx context.Context, key string, limit int, window time.Duration) (*rateLimitResult, error) {
	windowStart := time.Now().Truncate(window)
	resetAt := windowStart.Add(window)
	windowKey := key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	// Fixed window counter, expiring with the window
	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, windowKey)
	pipe.ExpireAt(ctx, windowKey, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	count := int(incrCmd.Val())
	return &rateLimitResult{
		allowed:   count <= limit,
		remaining: max(limit-count, 0),
		resetAt:   resetAt.Unix(),
	}, nil
}

// maxLocalBuckets bounds the fallback limiter's memory; the least recently
// seen callers lose their bucket first
const maxLocalBuckets = 100_000

// localLimiter is the per-instance fallback used while Redis is unavailable.
// Each key gets a token bucket holding limit tokens that refills over window.
type localLimiter struct {
	mu      sync.Mutex
	buckets cache.Cache[string, *rate.Limiter]
}

func newLocalLimiter(maxKeys int) *localLimiter {
	return &localLimiter{buckets: cache.NewLRU[string, *rate.Limiter](maxKeys)}
}

func (l *localLimiter) bucket(key string, limit int, window time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rate.Every(window/time.Duration(max(limit, 1))), limit)
	l.buckets.Set(key, b)
	return b
}

func (l *localLimiter) check(key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt int64, err error) {
	b := l.bucket(key, limit, window)
	now := time.Now()

	// Reserve a token; cancel the reservation if it would have to wait
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, now.Add(window).Unix(), nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, now.Add(delay).Unix(), nil
	}

	tokens := b.TokensAt(now)
	refill := time.Duration((float64(limit) - tokens) * float64(window) / float64(max(limit, 1)))
	return true, max(int(tokens), 0), now.Add(refill).Unix(), nil
}
