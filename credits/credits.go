// Package credits enforces the per-caller usage quota for the current billing
// period. The gate is consulted before any provider call: rejecting here
// short-circuits the pipeline before a single token is spent.
package credits

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweetpotato0/lexia/audit"
	"github.com/sweetpotato0/lexia/counter"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/pkg/logging"
)

// Decision is the result of a quota check. Read-only, no side effects.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// Gate authorizes requests against a per-caller, per-billing-period budget.
type Gate struct {
	counters counter.Store
	usage    audit.Store
	limit    int
	failOpen bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLimit sets the per-period credit budget.
func WithLimit(limit int) Option {
	return func(g *Gate) {
		g.limit = limit
	}
}

// WithFailOpen controls behavior when the counter store is unavailable:
// true authorizes the request anyway, false rejects it. One switch, set per
// deployment policy.
func WithFailOpen(open bool) Option {
	return func(g *Gate) {
		g.failOpen = open
	}
}

// WithClock overrides the time source; mainly useful for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a credit gate over the given counter and usage stores.
func NewGate(counters counter.Store, usage audit.Store, opts ...Option) *Gate {
	g := &Gate{
		counters: counters,
		usage:    usage,
		limit:    500,
		now:      time.Now,
		logger:   logging.WithComponent("credit_gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckRemaining reports whether the caller still has quota this period.
// Pure read: nothing is consumed until Record.
func (g *Gate) CheckRemaining(ctx context.Context, callerID string) (Decision, error) {
	used, err := g.counters.Peek(ctx, g.periodKey(callerID))
	if err != nil {
		if g.failOpen {
			g.logger.Warn("counter store unavailable, failing open", "caller_id", callerID, "error", err)
			return Decision{Allowed: true, Remaining: -1, Limit: g.limit}, nil
		}
		return Decision{}, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "credit counter unavailable", err)
	}

	remaining := g.limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: int(used) < g.limit, Remaining: remaining, Limit: g.limit}, nil
}

// Authorize is CheckRemaining plus the terminal error mapping: a spent quota
// becomes a CreditsExhausted error the HTTP boundary reports as 402.
func (g *Gate) Authorize(ctx context.Context, callerID string) error {
	dec, err := g.CheckRemaining(ctx, callerID)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		return lexiaerrors.Newf(lexiaerrors.KindCreditsExhausted,
			"credit budget of %d spent for the current period", dec.Limit)
	}
	return nil
}

// Record consumes credits and appends the usage record. Called only after the
// stream completes.
func (g *Gate) Record(ctx context.Context, rec *audit.UsageRecord) error {
	if rec == nil || rec.CallerID == "" {
		return lexiaerrors.New(lexiaerrors.KindValidation, "usage record requires a caller id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = g.now()
	}

	// Counter keys are period-scoped, so the ttl only needs to outlive the
	// billing month.
	if _, err := g.counters.Add(ctx, g.periodKey(rec.CallerID), int64(rec.Credits), 40*24*time.Hour); err != nil {
		if !g.failOpen {
			return lexiaerrors.Wrap(lexiaerrors.KindPersistence, "consume credits", err)
		}
		g.logger.Warn("credit consumption not counted", "caller_id", rec.CallerID, "error", err)
	}

	if g.usage != nil {
		if err := g.usage.Append(ctx, rec); err != nil {
			return lexiaerrors.Wrap(lexiaerrors.KindPersistence, "append usage record", err)
		}
	}
	return nil
}

// periodKey scopes a caller's counter to the current billing month.
func (g *Gate) periodKey(callerID string) string {
	return "credits:" + callerID + ":" + g.now().UTC().Format("2006-01")
}
