package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Run("extracts kind from wrapped chain", func(t *testing.T) {
		inner := New(KindCreditsExhausted, "monthly quota spent")
		wrapped := fmt.Errorf("pipeline: %w", inner)

		if got := KindOf(wrapped); got != KindCreditsExhausted {
			t.Errorf("expected credits_exhausted, got %s", got)
		}
	})

	t.Run("defaults to internal for plain errors", func(t *testing.T) {
		if got := KindOf(fmt.Errorf("boom")); got != KindInternal {
			t.Errorf("expected internal, got %s", got)
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindCreditsExhausted, http.StatusPaymentRequired},
		{KindForbidden, http.StatusForbidden},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindValidation, http.StatusBadRequest},
		{KindStateConflict, http.StatusConflict},
		{KindProviderTransient, http.StatusInternalServerError},
		{KindPersistence, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("kind %s: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Message: "slow down", RetryAfter: 42}
	if got := RetryAfterSeconds(fmt.Errorf("step: %w", err)); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := RetryAfterSeconds(fmt.Errorf("plain")); got != 0 {
		t.Errorf("expected 0 for plain error, got %d", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(New(KindProviderTransient, "timeout")) {
		t.Error("expected provider_transient to be transient")
	}
	if IsTransient(New(KindValidation, "bad input")) {
		t.Error("validation must not be transient")
	}
}
