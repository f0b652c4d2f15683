package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
	keyPrefix                = "ratelimit:provider"
)

// allowScript increments the window counter and admits while under ARGV[1].
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed one-second window limiter shared by every
// worker replica, keyed by provider name.
type RedisRateLimiter struct {
	client       *goredis.Client
	defaultLimit int64
	limits       map[string]int64
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

type Option func(*RedisRateLimiter)

// WithProviderLimit overrides the per-second limit of one provider.
func WithProviderLimit(provider string, perSec int) Option {
	return func(r *RedisRateLimiter) {
		if perSec > 0 {
			r.limits[normalizeKey(provider)] = int64(perSec)
		}
	}
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int, opts ...Option) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext, opts...)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
	opts ...Option,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	r := &RedisRateLimiter{
		client:       client,
		defaultLimit: limitPerSec,
		limits:       make(map[string]int64),
		now:          nowFn,
		sleep:        sleepFn,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	name := normalizeKey(provider)
	if name == "" {
		return false, fmt.Errorf("provider is required")
	}

	limit, ok := r.limits[name]
	if !ok {
		limit = r.defaultLimit
	}

	key := fmt.Sprintf("%s:%s:%d", keyPrefix, name, r.now().UTC().Unix())
	result, err := allowScript.Run(ctx, r.client, []string{key}, limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until provider is admitted or ctx is done.
func (r *RedisRateLimiter) Wait(ctx context.Context, provider string) error {
	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, provider)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func normalizeKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
