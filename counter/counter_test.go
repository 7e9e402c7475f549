package counter

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("increments and peeks", func(t *testing.T) {
		s := NewInMemoryStore()

		for i := int64(1); i <= 3; i++ {
			got, err := s.Incr(ctx, "k", 0)
			if err != nil || got != i {
				t.Fatalf("incr %d: got %d, %v", i, got, err)
			}
		}

		if got, _ := s.Peek(ctx, "k"); got != 3 {
			t.Errorf("peek expected 3, got %d", got)
		}
		if got, _ := s.Peek(ctx, "missing"); got != 0 {
			t.Errorf("peek missing expected 0, got %d", got)
		}
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		s := NewInMemoryStore()
		s.Incr(ctx, "k", 0)
		s.Reset(ctx, "k")
		if got, _ := s.Peek(ctx, "k"); got != 0 {
			t.Errorf("expected 0 after reset, got %d", got)
		}
	})

	t.Run("expiry drops the window", func(t *testing.T) {
		s := NewInMemoryStore()
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		s.SetClock(func() time.Time { return now })

		s.Incr(ctx, "k", time.Minute)
		s.Incr(ctx, "k", time.Minute)

		now = now.Add(59 * time.Second)
		if got, _ := s.Peek(ctx, "k"); got != 2 {
			t.Errorf("counter expired early, got %d", got)
		}

		now = now.Add(2 * time.Second)
		if got, _ := s.Peek(ctx, "k"); got != 0 {
			t.Errorf("counter should have expired, got %d", got)
		}

		// A fresh increment starts a new window at 1.
		if got, _ := s.Incr(ctx, "k", time.Minute); got != 1 {
			t.Errorf("new window should start at 1, got %d", got)
		}
	})
}
