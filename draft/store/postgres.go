// Package store provides draft persistence backed by PostgreSQL, plus an
// in-memory store for tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/lexia/draft"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// PostgresStore implements draft.Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the drafts table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS drafts (
		id VARCHAR(64) PRIMARY KEY,
		session_id VARCHAR(64),
		case_id VARCHAR(64),
		caller_id VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		provider VARCHAR(64) NOT NULL,
		iteration INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_session ON drafts(session_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save inserts one draft record.
func (s *PostgresStore) Save(ctx context.Context, rec *draft.Record) error {
	if rec == nil {
		return fmt.Errorf("draft record cannot be nil")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO drafts (id, session_id, case_id, caller_id, content, provider, iteration, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.CaseID, rec.CallerID,
		rec.Content, rec.Provider, rec.Iteration, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// Get loads one draft by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*draft.Record, error) {
	query := `
	SELECT id, session_id, case_id, caller_id, content, provider, iteration, created_at
	FROM drafts WHERE id = $1`

	var rec draft.Record
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.SessionID, &rec.CaseID, &rec.CallerID,
		&rec.Content, &rec.Provider, &rec.Iteration, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lexiaerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}
	return &rec, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore keeps drafts in a mutex-guarded map, for tests and
// store-less deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]draft.Record
}

// NewInMemoryStore creates an empty in-memory draft store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{drafts: make(map[string]draft.Record)}
}

// Save stores a draft record.
func (s *InMemoryStore) Save(_ context.Context, rec *draft.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[rec.ID] = *rec
	return nil
}

// Get returns a copy of the stored draft.
func (s *InMemoryStore) Get(_ context.Context, id string) (*draft.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.drafts[id]
	if !ok {
		return nil, lexiaerrors.ErrNotFound
	}
	out := rec
	return &out, nil
}

// All returns every stored draft, for assertions in tests.
func (s *InMemoryStore) All() []draft.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]draft.Record, 0, len(s.drafts))
	for _, rec := range s.drafts {
		out = append(out, rec)
	}
	return out
}
