package credits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sweetpotato0/lexia/audit"
	"github.com/sweetpotato0/lexia/counter"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/intent"
)

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, fmt.Errorf("redis down")
}
func (brokenCounter) Add(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, fmt.Errorf("redis down")
}
func (brokenCounter) Peek(context.Context, string) (int64, error) {
	return 0, fmt.Errorf("redis down")
}
func (brokenCounter) Reset(context.Context, string) error { return nil }

func TestGate(t *testing.T) {
	ctx := context.Background()

	t.Run("authorizes while quota remains", func(t *testing.T) {
		gate := NewGate(counter.NewInMemoryStore(), audit.NewInMemoryStore(), WithLimit(10))

		dec, err := gate.CheckRemaining(ctx, "user-1")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !dec.Allowed || dec.Remaining != 10 {
			t.Errorf("expected full quota, got %+v", dec)
		}
	})

	t.Run("record consumes and check reflects it", func(t *testing.T) {
		usage := audit.NewInMemoryStore()
		gate := NewGate(counter.NewInMemoryStore(), usage, WithLimit(5))

		rec := &audit.UsageRecord{
			CallerID: "user-1",
			TraceID:  "t-1",
			Intent:   intent.IntentDrafting,
			Provider: "claude",
			Credits:  5,
			Tokens:   1200,
		}
		if err := gate.Record(ctx, rec); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		dec, err := gate.CheckRemaining(ctx, "user-1")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if dec.Allowed || dec.Remaining != 0 {
			t.Errorf("quota should be spent, got %+v", dec)
		}

		if err := gate.Authorize(ctx, "user-1"); lexiaerrors.KindOf(err) != lexiaerrors.KindCreditsExhausted {
			t.Errorf("expected credits_exhausted, got %v", err)
		}

		if got := usage.Records(); len(got) != 1 || got[0].TraceID != "t-1" {
			t.Errorf("usage record not appended: %+v", got)
		}
	})

	t.Run("counter outage fails closed by default", func(t *testing.T) {
		gate := NewGate(brokenCounter{}, audit.NewInMemoryStore(), WithLimit(5))
		_, err := gate.CheckRemaining(ctx, "user-1")
		if lexiaerrors.KindOf(err) != lexiaerrors.KindPersistence {
			t.Errorf("expected persistence error, got %v", err)
		}
	})

	t.Run("counter outage fails open when configured", func(t *testing.T) {
		gate := NewGate(brokenCounter{}, audit.NewInMemoryStore(), WithLimit(5), WithFailOpen(true))
		dec, err := gate.CheckRemaining(ctx, "user-1")
		if err != nil || !dec.Allowed {
			t.Errorf("expected fail-open authorization, got %+v, %v", dec, err)
		}
	})

	t.Run("quota resets with the billing period", func(t *testing.T) {
		now := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		store := counter.NewInMemoryStore()
		gate := NewGate(store, audit.NewInMemoryStore(), WithLimit(1), WithClock(clock))

		gate.Record(ctx, &audit.UsageRecord{CallerID: "user-1", TraceID: "t-1", Credits: 1})
		if err := gate.Authorize(ctx, "user-1"); err == nil {
			t.Fatal("expected exhaustion in current period")
		}

		now = time.Date(2026, 9, 1, 0, 1, 0, 0, time.UTC)
		if err := gate.Authorize(ctx, "user-1"); err != nil {
			t.Errorf("new period should reset quota: %v", err)
		}
	})
}
