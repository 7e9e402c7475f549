package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/lexia/audit"
)

// PostgresStore implements audit.Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the usage table exists.
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
	CREATE TABLE IF NOT EXISTS usage_records (
		trace_id VARCHAR(64) PRIMARY KEY,
		caller_id VARCHAR(255) NOT NULL,
		intent VARCHAR(64) NOT NULL,
		provider VARCHAR(64) NOT NULL,
		credits INT NOT NULL,
		tokens INT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_caller_created ON usage_records(caller_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Append inserts one usage record. Records are never updated or deleted.
func (s *PostgresStore) Append(ctx context.Context, rec *audit.UsageRecord) error {
	if rec == nil {
		return fmt.Errorf("usage record cannot be nil")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO usage_records (trace_id, caller_id, intent, provider, credits, tokens, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		rec.TraceID, rec.CallerID, string(rec.Intent), rec.Provider,
		rec.Credits, rec.Tokens, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// CreditsUsed sums the credits a caller consumed since the given instant.
func (s *PostgresStore) CreditsUsed(ctx context.Context, callerID string, since time.Time) (int, error) {
	query := `
	SELECT COALESCE(SUM(credits), 0) FROM usage_records
	WHERE caller_id = $1 AND created_at >= $2`

	var total int
	if err := s.db.QueryRowContext(ctx, query, callerID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum credits: %w", err)
	}
	return total, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
