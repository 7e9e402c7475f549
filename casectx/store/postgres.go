package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	stderrors "errors"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/lexia/casectx"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// PostgresStore reads case summaries from PostgreSQL. The schema is owned by
// the surrounding practice-management system; this store only reads the
// case_summaries projection.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL using the given DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// CaseSummary fetches the bounded summary row for one case.
func (s *PostgresStore) CaseSummary(ctx context.Context, caseID string) (*casectx.CaseContext, error) {
	query := `
	SELECT number, title, case_type, status, document_count, note_count,
	       COALESCE(parties, '[]'::jsonb), COALESCE(deadlines, '[]'::jsonb)
	FROM case_summaries
	WHERE case_id = $1`

	var (
		summary      casectx.CaseContext
		partiesRaw   []byte
		deadlinesRaw []byte
	)
	summary.CaseID = caseID

	err := s.db.QueryRowContext(ctx, query, caseID).Scan(
		&summary.Number, &summary.Title, &summary.Type, &summary.Status,
		&summary.DocumentCount, &summary.NoteCount, &partiesRaw, &deadlinesRaw,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, lexiaerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query case summary: %w", err)
	}

	if err := json.Unmarshal(partiesRaw, &summary.Parties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parties: %w", err)
	}
	if err := json.Unmarshal(deadlinesRaw, &summary.Deadlines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deadlines: %w", err)
	}

	return &summary, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
