package evidence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// MemoryStore is an append-only, per-service, time-ordered evidence log.
type MemoryStore struct {
	mu        sync.RWMutex
	byService map[string][]models.Evidence
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byService: make(map[string][]models.Evidence)}
}

// Append validates and inserts evidence, keeping each service's slice sorted.
// Items with equal timestamps keep their arrival order.
func (s *MemoryStore) Append(ctx context.Context, items ...models.Evidence) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("evidence[%d]: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		svc := item.ServiceID()
		list := s.byService[svc]
		ts := item.Timestamp()
		idx := sort.Search(len(list), func(i int) bool { return list[i].Timestamp().After(ts) })
		list = append(list, models.Evidence{})
		copy(list[idx+1:], list[idx:])
		list[idx] = item
		s.byService[svc] = list
	}
	return nil
}

// Query returns copies of the matching evidence in ascending timestamp order.
func (s *MemoryStore) Query(ctx context.Context, serviceID string, window models.TimeRange, kinds models.KindSet) ([]models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byService[serviceID]
	start := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp().Before(window.Start) })
	var out []models.Evidence
	for _, item := range list[start:] {
		if item.Timestamp().After(window.End) {
			break
		}
		if kinds.Has(item.Kind) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Prune drops evidence older than cutoff and reports how many items were removed.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for svc, list := range s.byService {
		idx := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp().Before(cutoff) })
		if idx == 0 {
			continue
		}
		removed += idx
		if idx == len(list) {
			delete(s.byService, svc)
			continue
		}
		s.byService[svc] = append([]models.Evidence(nil), list[idx:]...)
	}
	return removed
}

// Len returns the number of stored items across services.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.byService {
		n += len(list)
	}
	return n
}
