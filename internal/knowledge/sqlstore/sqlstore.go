// Package sqlstore persists knowledge counters in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-responder/internal/models"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// Store keeps knowledge counters in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens dsn, applies the schema and returns a ready store.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps increments serialised without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open database. The caller runs Migrate.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs the embedded schema files in name order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrationFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

const upsertOutcome = `INSERT INTO knowledge_records (signature, action_kind, attempts, successes, updated_at)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT (signature, action_kind) DO UPDATE SET
    attempts = knowledge_records.attempts + 1,
    successes = knowledge_records.successes + excluded.successes,
    updated_at = excluded.updated_at
RETURNING attempts, successes`

// RecordOutcome increments both counters in one upsert statement.
func (s *Store) RecordOutcome(ctx context.Context, signature, actionKind string, succeeded bool) (models.KnowledgeRecord, error) {
	inc := 0
	if succeeded {
		inc = 1
	}
	rec := models.KnowledgeRecord{RootCauseSignature: signature, ActionKind: actionKind}
	row := s.db.QueryRowContext(ctx, upsertOutcome, signature, actionKind, inc, s.now().UTC().Format(time.RFC3339Nano))
	if err := row.Scan(&rec.Attempts, &rec.Successes); err != nil {
		return models.KnowledgeRecord{}, fmt.Errorf("record outcome: %w", err)
	}
	return rec, nil
}

// Lookup returns the counters for one pair, zero when absent.
func (s *Store) Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error) {
	rec := models.KnowledgeRecord{RootCauseSignature: signature, ActionKind: actionKind}
	row := s.db.QueryRowContext(ctx, `SELECT attempts, successes FROM knowledge_records WHERE signature = ? AND action_kind = ?`, signature, actionKind)
	if err := row.Scan(&rec.Attempts, &rec.Successes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, nil
		}
		return models.KnowledgeRecord{}, fmt.Errorf("lookup knowledge: %w", err)
	}
	return rec, nil
}

// List returns all counters for signature ordered by action kind.
func (s *Store) List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action_kind, attempts, successes FROM knowledge_records WHERE signature = ? ORDER BY action_kind ASC`, signature)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	out := []models.KnowledgeRecord{}
	for rows.Next() {
		rec := models.KnowledgeRecord{RootCauseSignature: signature}
		if err := rows.Scan(&rec.ActionKind, &rec.Attempts, &rec.Successes); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
