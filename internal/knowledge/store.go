// Package knowledge keeps per (root cause signature, action kind) outcome
// counters and turns them into predicted success rates.
package knowledge

import (
	"context"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Store persists outcome counters. RecordOutcome must increment attempts and,
// when succeeded, successes in one atomic step per key.
type Store interface {
	RecordOutcome(ctx context.Context, signature, actionKind string, succeeded bool) (models.KnowledgeRecord, error)
	// Lookup returns a zero-count record when the key has never been seen.
	Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error)
	List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error)
}

// Key identifies one counter pair.
func Key(signature, actionKind string) string {
	return signature + "|" + actionKind
}
