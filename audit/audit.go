// Package audit defines the append-only usage trail written after each
// completed orchestration. Records are never mutated; the credit gate uses
// them as the authoritative history behind its fast counters.
package audit

import (
	"context"
	"time"

	"github.com/sweetpotato0/lexia/intent"
)

// UsageRecord captures one completed request. Append-only.
type UsageRecord struct {
	CallerID  string        `json:"caller_id"`
	TraceID   string        `json:"trace_id"`
	Intent    intent.Intent `json:"intent"`
	Provider  string        `json:"provider"`
	Credits   int           `json:"credits"`
	Tokens    int           `json:"tokens"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists usage records.
type Store interface {
	Append(ctx context.Context, rec *UsageRecord) error
}

// InMemoryStore keeps records in a slice; for tests and single-process use.
type InMemoryStore struct {
	records []UsageRecord
}

// NewInMemoryStore creates an empty in-memory usage store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stores a copy of the record.
func (s *InMemoryStore) Append(_ context.Context, rec *UsageRecord) error {
	s.records = append(s.records, *rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (s *InMemoryStore) Records() []UsageRecord {
	return append([]UsageRecord(nil), s.records...)
}
