package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestConfirmLimiterBlocksAfterLimit(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := ratelimit.NewConfirmLimiter(client, 3, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "10.0.0.1"); !errors.Is(err, ratelimit.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	if err := limiter.Allow(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other clients must not share the window: %v", err)
	}
}

func TestConfirmLimiterWindowExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := ratelimit.NewConfirmLimiter(client, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("first attempt should be allowed: %v", err)
	}
	if err := limiter.Allow(ctx, "10.0.0.1"); !errors.Is(err, ratelimit.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	if ttl := mr.TTL("hrauth:confirm:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl to be set, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := limiter.Allow(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
}

func TestConfirmLimiterIgnoresEmptyClient(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := ratelimit.NewConfirmLimiter(client, 0, time.Minute)

	if err := limiter.Allow(context.Background(), ""); err != nil {
		t.Fatalf("empty client must not be throttled: %v", err)
	}
}

func TestConfirmLimiterReportsUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := ratelimit.NewConfirmLimiter(client, 3, time.Minute)
	mr.Close()

	if err := limiter.Allow(context.Background(), "10.0.0.1"); !errors.Is(err, ratelimit.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
