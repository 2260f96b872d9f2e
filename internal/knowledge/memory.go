package knowledge

import (
	"context"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// MemoryStore keeps counters in a process-local map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.KnowledgeRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.KnowledgeRecord)}
}

// RecordOutcome increments the counters under a single lock.
func (s *MemoryStore) RecordOutcome(ctx context.Context, signature, actionKind string, succeeded bool) (models.KnowledgeRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.KnowledgeRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(signature, actionKind)
	rec := s.records[key]
	rec.RootCauseSignature = signature
	rec.ActionKind = actionKind
	rec.Attempts++
	if succeeded {
		rec.Successes++
	}
	s.records[key] = rec
	return rec, nil
}

// Lookup returns the current counters.
func (s *MemoryStore) Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.KnowledgeRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[Key(signature, actionKind)]
	if !ok {
		return models.KnowledgeRecord{RootCauseSignature: signature, ActionKind: actionKind}, nil
	}
	return rec, nil
}

// List returns every record for signature ordered by action kind.
func (s *MemoryStore) List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KnowledgeRecord
	for _, rec := range s.records {
		if rec.RootCauseSignature == signature {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionKind < out[j].ActionKind })
	return out, nil
}
