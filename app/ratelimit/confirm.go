// Package ratelimit throttles email-confirmation attempts per client so the
// 6-digit code space cannot be walked from one address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTooManyAttempts = errors.New("too many confirmation attempts")
	ErrUnavailable     = errors.New("confirm attempt limiter unavailable")
)

const confirmKeyPrefix = "hrauth:confirm:"

type ConfirmLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewConfirmLimiter(client *redis.Client, limit int, window time.Duration) *ConfirmLimiter {
	return &ConfirmLimiter{redis: client, limit: limit, window: window}
}

// Allow counts one attempt for client inside a fixed window. An empty client
// key is never throttled.
func (l *ConfirmLimiter) Allow(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}

	key := confirmKeyPrefix + client
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err = l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(l.limit) {
		return ErrTooManyAttempts
	}
	return nil
}
