package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/jmoiron/sqlx"
)

const createLedgerTable = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		ledger     TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		metadata   JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (ledger, id)
	)
`

// PostgresStore keeps one ledger as rows of the ledger_entries table.
// The metadata column holds the entry document.
type PostgresStore struct {
	db     *sqlx.DB
	ledger string
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// CreatePostgresSchema creates the ledger_entries table if it is missing
func CreatePostgresSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createLedgerTable); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

// NewPostgresStore returns a store scoped to ledger. The table must exist,
// see CreatePostgresSchema.
func NewPostgresStore(db *sqlx.DB, ledger string, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		ledger: ledger,
		logger: logger,
	}
}

type ledgerRow struct {
	ID       string `db:"id"`
	Metadata []byte `db:"metadata"`
}

func (r ledgerRow) entry() (domain.Entry, error) {
	var e domain.Entry
	if err := json.Unmarshal(r.Metadata, &e); err != nil {
		return e, fmt.Errorf("failed to decode ledger entry %s: %w", r.ID, err)
	}
	e.Key = r.ID
	return e, nil
}

// Get retrieves an entry by key
func (s *PostgresStore) Get(ctx context.Context, key string) (*domain.Entry, error) {
	query := `
		SELECT id, metadata
		FROM ledger_entries
		WHERE ledger = $1 AND id = $2
	`

	var row ledgerRow
	if err := s.db.GetContext(ctx, &row, query, s.ledger, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	e, err := row.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutSuccess stores the outcome unless the row already carries a response
func (s *PostgresStore) PutSuccess(ctx context.Context, key string, outcome domain.Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}

	response, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	doc, err := json.Marshal(domain.Entry{Key: key, Response: &outcome})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (ledger, id, metadata, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (ledger, id) DO UPDATE
		SET metadata = jsonb_set(ledger_entries.metadata, '{response}', $4::jsonb),
		    updated_at = NOW()
		WHERE ledger_entries.metadata -> 'response' IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, s.ledger, key, doc, response)
	if err != nil {
		return fmt.Errorf("failed to record ledger success: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrAlreadyTransferred
	}

	s.logger.Debug("Ledger success recorded",
		slog.String("ledger", s.ledger),
		slog.String("key", key),
	)

	return nil
}

// RecordAttempt increments the attempt counter, creating the row if needed
func (s *PostgresStore) RecordAttempt(ctx context.Context, key, source string) error {
	doc, err := json.Marshal(domain.Entry{Key: key, Source: source, Attempts: 1})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (ledger, id, metadata, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (ledger, id) DO UPDATE
		SET metadata = ledger_entries.metadata || jsonb_build_object(
				'attempts', COALESCE((ledger_entries.metadata ->> 'attempts')::int, 0) + 1,
				'source', COALESCE(NULLIF($4, ''), ledger_entries.metadata ->> 'source', '')
			),
		    updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, s.ledger, key, doc, source); err != nil {
		return fmt.Errorf("failed to record ledger attempt: %w", err)
	}

	return nil
}

// List returns entries ordered by key for cursor pagination
func (s *PostgresStore) List(ctx context.Context, afterKey string, limit int) ([]domain.Entry, error) {
	query := `
		SELECT id, metadata
		FROM ledger_entries
		WHERE ledger = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`

	var rows []ledgerRow
	if err := s.db.SelectContext(ctx, &rows, query, s.ledger, afterKey, limit); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Close is a no-op; the connection belongs to the postgresql client
func (s *PostgresStore) Close() error { return nil }
