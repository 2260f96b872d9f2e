package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-responder/internal/cache"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

type failingStore struct{ err error }

func (f failingStore) RecordOutcome(context.Context, string, string, bool) (models.KnowledgeRecord, error) {
	return models.KnowledgeRecord{}, f.err
}

func (f failingStore) Lookup(context.Context, string, string) (models.KnowledgeRecord, error) {
	return models.KnowledgeRecord{}, f.err
}

func (f failingStore) List(context.Context, string) ([]models.KnowledgeRecord, error) {
	return nil, f.err
}

type countingStore struct {
	Store
	lookups int
}

func (c *countingStore) Lookup(ctx context.Context, sig, kind string) (models.KnowledgeRecord, error) {
	c.lookups++
	return c.Store.Lookup(ctx, sig, kind)
}

type kindSet map[string]bool

func (k kindSet) HasKind(kind string) bool { return k[kind] }

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := store.RecordOutcome(ctx, "sig", "restart", i%2 == 0); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	rec, err := store.Lookup(ctx, "sig", "restart")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Attempts != workers*perWorker || rec.Successes != workers*perWorker/2 {
		t.Fatalf("lost updates: %+v", rec)
	}
}

func TestEstimatorPriorAndRate(t *testing.T) {
	est := NewEstimator(NewMemoryStore(), 0.5, time.Second, nil)
	ctx := context.Background()

	rate, err := est.SuccessRate(ctx, "sig", "restart")
	if err != nil || rate != 0.5 {
		t.Fatalf("expected prior 0.5, got %f err %v", rate, err)
	}
	for _, ok := range []bool{true, true, true, false} {
		if err := est.Record(ctx, "sig", "restart", ok); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	rate, _ = est.SuccessRate(ctx, "sig", "restart")
	if rate != 0.75 {
		t.Fatalf("expected 0.75, got %f", rate)
	}
	if NewEstimator(NewMemoryStore(), 7, 0, nil).Prior() != DefaultPrior {
		t.Fatalf("out-of-range prior should fall back to default")
	}
}

func TestEstimatorSurfacesUnavailable(t *testing.T) {
	est := NewEstimator(failingStore{err: errors.New("db down")}, 0.5, time.Second, nil)
	if _, err := est.SuccessRate(context.Background(), "sig", "restart"); !errors.Is(err, utils.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if err := est.Record(context.Background(), "sig", "restart", true); !errors.Is(err, utils.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable on write, got %v", err)
	}
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	cached := NewCachedStore(inner, cache.NewMemoryProvider(), time.Minute, nil)
	ctx := context.Background()

	_, _ = cached.Lookup(ctx, "sig", "rollback")
	_, _ = cached.Lookup(ctx, "sig", "rollback")
	if inner.lookups != 1 {
		t.Fatalf("expected second lookup served from cache, inner lookups=%d", inner.lookups)
	}

	if _, err := cached.RecordOutcome(ctx, "sig", "rollback", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec, err := cached.Lookup(ctx, "sig", "rollback")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Attempts != 1 || inner.lookups != 2 {
		t.Fatalf("expected fresh read after write, rec=%+v lookups=%d", rec, inner.lookups)
	}
}

type stallingStore struct {
	Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Lookup(ctx context.Context, sig, kind string) (models.KnowledgeRecord, error) {
	rec, err := s.Store.Lookup(ctx, sig, kind)
	stalled := false
	s.once.Do(func() { stalled = true })
	if stalled {
		close(s.entered)
		<-s.release
	}
	return rec, err
}

func TestCachedStoreDropsLookupThatRacedWrite(t *testing.T) {
	inner := &stallingStore{Store: NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	provider := cache.NewMemoryProvider()
	cached := NewCachedStore(inner, provider, time.Minute, nil)
	ctx := context.Background()

	stale := make(chan models.KnowledgeRecord, 1)
	go func() {
		rec, _ := cached.Lookup(ctx, "sig", "rollback")
		stale <- rec
	}()
	<-inner.entered
	if _, err := cached.RecordOutcome(ctx, "sig", "rollback", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	close(inner.release)
	if rec := <-stale; rec.Attempts != 0 {
		t.Fatalf("expected the racing lookup to see the pre-write value, got %+v", rec)
	}

	if _, err := provider.Get(ctx, cacheKey("sig", "rollback")); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("stale read must not be cached, got %v", err)
	}
	rec, err := cached.Lookup(ctx, "sig", "rollback")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Attempts != 1 || rec.Successes != 1 {
		t.Fatalf("expected fresh record, got %+v", rec)
	}
}

func TestFeedbackSinkValidation(t *testing.T) {
	store := NewMemoryStore()
	sink := NewFeedbackSink(NewEstimator(store, 0.5, time.Second, nil), kindSet{"restart": true}, nil)
	ctx := context.Background()

	cases := []models.Outcome{
		{ActionKind: "restart"},
		{RootCauseSignature: "sig"},
		{RootCauseSignature: "sig", ActionKind: "reboot-datacenter"},
	}
	for _, c := range cases {
		if err := sink.Record(ctx, c); !errors.Is(err, utils.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument for %+v, got %v", c, err)
		}
	}

	if err := sink.Record(ctx, models.Outcome{RootCauseSignature: "sig", ActionKind: "restart", Succeeded: false}); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec, _ := store.Lookup(ctx, "sig", "restart")
	if rec.Attempts != 1 || rec.Successes != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFeedbackSinkRecordExecution(t *testing.T) {
	store := NewMemoryStore()
	sink := NewFeedbackSink(NewEstimator(store, 0.5, time.Second, nil), nil, nil)
	decision := models.Decision{ID: "d1", RootCauseSignature: "sig"}
	action := models.Action{Kind: "rollback"}
	if err := sink.RecordExecution(context.Background(), decision, action, models.ExecutionResult{Succeeded: true}); err != nil {
		t.Fatalf("record execution: %v", err)
	}
	rec, _ := store.Lookup(context.Background(), "sig", "rollback")
	if rec.Successes != 1 {
		t.Fatalf("expected success recorded, got %+v", rec)
	}
}
