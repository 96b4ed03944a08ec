package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts hits per key in fixed windows. The first hit of a
// window sets its expiry.
type RateLimiter struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRateLimiter allows limit hits per key within each window.
func NewRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RateLimiter{redis: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow records a hit for key and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}
	return count <= l.limit, nil
}

// Reset clears the counter for key.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
