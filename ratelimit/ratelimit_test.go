package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/lexia/counter"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

func TestLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("sixty-first call in the window is rejected", func(t *testing.T) {
		store := counter.NewInMemoryStore()
		now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		store.SetClock(func() time.Time { return now })
		limiter := NewLimiter(store, 60, time.Minute)

		for i := 0; i < 60; i++ {
			ok, _, err := limiter.Allow(ctx, "user-1")
			if err != nil || !ok {
				t.Fatalf("call %d should be allowed: ok=%v err=%v", i+1, ok, err)
			}
		}

		ok, retryAfter, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("61st call must be rejected")
		}
		if retryAfter <= 0 || retryAfter > time.Minute {
			t.Errorf("retry-after must be within the window, got %s", retryAfter)
		}

		// First call in the next window succeeds.
		now = now.Add(61 * time.Second)
		ok, _, err = limiter.Allow(ctx, "user-1")
		if err != nil || !ok {
			t.Errorf("first call of next window should pass: ok=%v err=%v", ok, err)
		}
	})

	t.Run("callers are limited independently", func(t *testing.T) {
		limiter := NewLimiter(counter.NewInMemoryStore(), 1, time.Minute)

		if ok, _, _ := limiter.Allow(ctx, "a"); !ok {
			t.Fatal("first call for a should pass")
		}
		if ok, _, _ := limiter.Allow(ctx, "a"); ok {
			t.Fatal("second call for a should be rejected")
		}
		if ok, _, _ := limiter.Allow(ctx, "b"); !ok {
			t.Error("caller b must not be affected by caller a")
		}
	})

	t.Run("check maps to a rate-limited error with hint", func(t *testing.T) {
		limiter := NewLimiter(counter.NewInMemoryStore(), 1, time.Minute)
		limiter.Check(ctx, "user-1")

		err := limiter.Check(ctx, "user-1")
		if lexiaerrors.KindOf(err) != lexiaerrors.KindRateLimited {
			t.Fatalf("expected rate_limited, got %v", err)
		}
		if hint := lexiaerrors.RetryAfterSeconds(err); hint <= 0 || hint > 60 {
			t.Errorf("retry-after hint out of range: %d", hint)
		}
	})
}
