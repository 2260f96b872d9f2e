// Package pgstore persists knowledge counters in PostgreSQL via pgx.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miradorstack/mirador-responder/internal/models"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps knowledge counters in PostgreSQL.
type Store struct {
	db    querier
	close func()
}

// Open connects, pings and migrates.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newWithQuerier(db querier) *Store {
	return &Store{db: db, close: func() {}}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.close()
	return nil
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
		if _, err := s.db.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

// RecordOutcome increments both counters in one upsert statement.
func (s *Store) RecordOutcome(ctx context.Context, signature, actionKind string, succeeded bool) (models.KnowledgeRecord, error) {
	inc := int64(0)
	if succeeded {
		inc = 1
	}
	rec := models.KnowledgeRecord{RootCauseSignature: signature, ActionKind: actionKind}
	err := s.db.QueryRow(ctx, `
        INSERT INTO knowledge_records (signature, action_kind, attempts, successes, updated_at)
        VALUES ($1, $2, 1, $3, now())
        ON CONFLICT (signature, action_kind) DO UPDATE SET
            attempts = knowledge_records.attempts + 1,
            successes = knowledge_records.successes + EXCLUDED.successes,
            updated_at = now()
        RETURNING attempts, successes
    `, signature, actionKind, inc).Scan(&rec.Attempts, &rec.Successes)
	if err != nil {
		return models.KnowledgeRecord{}, fmt.Errorf("record outcome: %w", err)
	}
	return rec, nil
}

// Lookup returns the counters for one pair, zero when absent.
func (s *Store) Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error) {
	rec := models.KnowledgeRecord{RootCauseSignature: signature, ActionKind: actionKind}
	err := s.db.QueryRow(ctx, `
        SELECT attempts, successes
        FROM knowledge_records
        WHERE signature = $1 AND action_kind = $2
    `, signature, actionKind).Scan(&rec.Attempts, &rec.Successes)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return models.KnowledgeRecord{}, fmt.Errorf("lookup knowledge: %w", err)
	}
	return rec, nil
}

// List returns all counters for signature ordered by action kind.
func (s *Store) List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error) {
	rows, err := s.db.Query(ctx, `
        SELECT action_kind, attempts, successes
        FROM knowledge_records
        WHERE signature = $1
        ORDER BY action_kind ASC
    `, signature)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	out := []models.KnowledgeRecord{}
	for rows.Next() {
		rec := models.KnowledgeRecord{RootCauseSignature: signature}
		if err := rows.Scan(&rec.ActionKind, &rec.Attempts, &rec.Successes); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
