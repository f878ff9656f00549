package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{prefix}:{key}, expiring after one window.

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	Prefix string        // Key namespace, e.g. "publish"
	Limit  int           // Max actions per window
	Window time.Duration // Fixed window length
}

// RateLimiter is a fixed-window counter shared by every relay instance that
// points at the same Redis.
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	if config.Limit < 1 {
		config.Limit = 1
	}
	if config.Window < time.Millisecond {
		config.Window = time.Second
	}
	if config.Prefix == "" {
		config.Prefix = "publish"
	}
	return &RateLimiter{client: client, config: config}
}

var checkLimitScript = goredis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	local limit = tonumber(ARGV[1])
	if current > limit then
		return {0, 0, ttl}
	end
	return {1, limit - current, ttl}
`)

// Allow consumes one action for key. It satisfies the HTTP rate limit
// middleware's limiter contract.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := r.Check(ctx, key)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed, res.ResetIn, nil
}

// Check atomically counts one action against key.
func (r *RateLimiter) Check(ctx context.Context, key string) (*RateLimitResult, error) {
	result, err := checkLimitScript.Run(ctx, r.client, []string{r.key(key)}, r.config.Limit, r.config.Window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)
	if ttl < 0 {
		ttl = r.config.Window.Milliseconds()
	}

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Millisecond,
		Limit:     r.config.Limit,
	}, nil
}

// Reset clears the counter for key (admin operation)
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RateLimiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", r.config.Prefix, key)
}
