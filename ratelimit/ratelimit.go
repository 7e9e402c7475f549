// Package ratelimit enforces a per-caller rolling-window request cap.
// Exceeding it returns a retry-after hint; requests are never queued.
package ratelimit

import (
	"context"
	"time"

	"github.com/sweetpotato0/lexia/counter"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// Limiter caps requests per caller within a rolling window.
type Limiter struct {
	counters counter.Store
	window   time.Duration
	max      int64
}

// NewLimiter creates a limiter allowing max requests per window per caller.
func NewLimiter(counters counter.Store, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{counters: counters, window: window, max: int64(max)}
}

// Allow consumes one slot for the caller. When the cap is exceeded it returns
// false plus the delay after which the caller may retry.
func (l *Limiter) Allow(ctx context.Context, callerID string) (bool, time.Duration, error) {
	count, err := l.counters.Incr(ctx, "ratelimit:"+callerID, l.window)
	if err != nil {
		return false, 0, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "rate-limit counter unavailable", err)
	}
	if count > l.max {
		return false, l.window, nil
	}
	return true, 0, nil
}

// Check is Allow plus the terminal error mapping: an exceeded cap becomes a
// RateLimited error carrying the retry-after hint.
func (l *Limiter) Check(ctx context.Context, callerID string) error {
	ok, retryAfter, err := l.Allow(ctx, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return &lexiaerrors.Error{
			Kind:       lexiaerrors.KindRateLimited,
			Message:    "too many requests, retry later",
			RetryAfter: int(retryAfter.Seconds()),
		}
	}
	return nil
}
