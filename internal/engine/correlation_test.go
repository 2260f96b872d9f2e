package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/miradorstack/mirador-responder/internal/evidence"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

var alertTime = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func testAlert() models.Alert {
	return models.Alert{
		ID:        "alert-1",
		ServiceID: "checkout",
		Type:      "latency",
		Severity:  models.SeverityHigh,
		Timestamp: alertTime,
	}
}

func change(commit, file string, before time.Duration) models.Evidence {
	return models.ChangeEvidence(models.ChangeEvent{
		ServiceID:   "checkout",
		CommitID:    commit,
		Author:      "dev",
		Timestamp:   alertTime.Add(-before),
		File:        file,
		DiffSummary: "refactor handler",
	})
}

func logLine(key string, sev models.Severity, before time.Duration) models.Evidence {
	return models.LogEvidence(models.LogEvent{
		ServiceID: "checkout",
		Timestamp: alertTime.Add(-before),
		Key:       key,
		Text:      "upstream timeout",
		Severity:  sev,
	})
}

func newStore(t *testing.T, items ...models.Evidence) *evidence.MemoryStore {
	t.Helper()
	store := evidence.NewMemoryStore()
	if err := store.Append(context.Background(), items...); err != nil {
		t.Fatalf("append: %v", err)
	}
	return store
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

type failingStore struct{ err error }

func (f failingStore) Query(ctx context.Context, serviceID string, window models.TimeRange, kinds models.KindSet) ([]models.Evidence, error) {
	return nil, f.err
}

type blockingStore struct{}

func (blockingStore) Query(ctx context.Context, serviceID string, window models.TimeRange, kinds models.KindSet) ([]models.Evidence, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnalyzeNoEvidenceYieldsUnknown(t *testing.T) {
	engine := NewCorrelationEngine(newStore(t), nil, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(causes) != 1 {
		t.Fatalf("expected single placeholder, got %d", len(causes))
	}
	rc := causes[0]
	if !rc.IsUnknown() || rc.Confidence != 0 || !rc.Accepted {
		t.Fatalf("unexpected placeholder: %+v", rc)
	}
	if len(rc.Evidence) != 0 {
		t.Fatalf("placeholder should carry no evidence")
	}
}

func TestAnalyzeChangeProximity(t *testing.T) {
	engine := NewCorrelationEngine(newStore(t, change("abc123", "pay.go", 5*time.Minute)), nil, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(causes) != 1 {
		t.Fatalf("expected one cause, got %d", len(causes))
	}
	rc := causes[0]
	if rc.Kind != models.LinkChangeProximity {
		t.Fatalf("expected change proximity, got %s", rc.Kind)
	}
	if !approx(rc.Confidence, 1-5.0/30.0) {
		t.Fatalf("expected confidence ~0.833, got %f", rc.Confidence)
	}
	if rc.Signature != Signature("checkout", models.EvidenceChange, "pay.go") {
		t.Fatalf("unexpected signature %s", rc.Signature)
	}
	if rc.Evidence[0].FromEvidenceRef != "change:abc123:pay.go" || rc.Evidence[0].ToAlertRef != "alert:alert-1" {
		t.Fatalf("unexpected link %+v", rc.Evidence[0])
	}
}

func TestAnalyzeHotPathBoost(t *testing.T) {
	hot := NewHotPathTable(HotPath{AlertType: "latency", File: "pay.go"})
	engine := NewCorrelationEngine(newStore(t, change("abc123", "pay.go", 5*time.Minute)), hot, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	base := 1 - 5.0/30.0
	want := base + (1-base)*0.5
	if !approx(causes[0].Confidence, want) {
		t.Fatalf("expected boosted confidence %f, got %f", want, causes[0].Confidence)
	}
}

func TestAnalyzeGroupsFilesPerCommit(t *testing.T) {
	store := newStore(t,
		change("abc123", "b.go", 10*time.Minute),
		change("abc123", "a.go", 3*time.Minute),
	)
	engine := NewCorrelationEngine(store, nil, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(causes) != 1 {
		t.Fatalf("expected commit to collapse into one cause, got %d", len(causes))
	}
	if causes[0].Location != "a.go,b.go" {
		t.Fatalf("unexpected location %q", causes[0].Location)
	}
	if !approx(causes[0].Confidence, 1-3.0/30.0) {
		t.Fatalf("expected strongest file weight, got %f", causes[0].Confidence)
	}
}

func TestAnalyzeReinforcementIncreasesConfidence(t *testing.T) {
	single := NewCorrelationEngine(newStore(t,
		logLine("db", models.SeverityHigh, time.Minute),
	), nil, DefaultCorrelationConfig(), nil)
	double := NewCorrelationEngine(newStore(t,
		logLine("db", models.SeverityHigh, time.Minute),
		logLine("db", models.SeverityCritical, 2*time.Minute),
	), nil, DefaultCorrelationConfig(), nil)

	one, err := single.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	two, err := double.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !approx(one[0].Confidence, 0.2) {
		t.Fatalf("expected 0.2, got %f", one[0].Confidence)
	}
	if !approx(two[0].Confidence, 0.36) {
		t.Fatalf("expected 0.36, got %f", two[0].Confidence)
	}
	if len(two[0].Evidence) != 2 || two[0].Evidence[0].ObservedAt.After(two[0].Evidence[1].ObservedAt) {
		t.Fatalf("evidence should be ordered by time: %+v", two[0].Evidence)
	}
}

func TestAnalyzeIgnoresQuietLogs(t *testing.T) {
	engine := NewCorrelationEngine(newStore(t,
		logLine("db", models.SeverityLow, time.Minute),
		logLine("db", models.SeverityHigh, 20*time.Minute),
	), nil, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !causes[0].IsUnknown() {
		t.Fatalf("expected low-severity and stale logs to be ignored, got %+v", causes[0])
	}
}

func TestAnalyzeMetricInflection(t *testing.T) {
	var items []models.Evidence
	for i := 10; i >= 0; i-- {
		value := 10.0
		if i < 3 {
			value = 10 + float64(3-i)*20
		}
		items = append(items, models.MetricEvidence(models.MetricSample{
			ServiceID: "checkout",
			Timestamp: alertTime.Add(-time.Duration(i) * time.Minute),
			Key:       "heap_bytes",
			Value:     value,
		}))
	}
	engine := NewCorrelationEngine(newStore(t, items...), nil, DefaultCorrelationConfig(), nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	rc := causes[0]
	if rc.Kind != models.LinkMetricCorrelation || rc.Location != "heap_bytes" {
		t.Fatalf("expected metric cause, got %+v", rc)
	}
	if rc.Confidence <= 0 || rc.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", rc.Confidence)
	}
	if !rc.Evidence[0].ObservedAt.Equal(alertTime.Add(-3 * time.Minute)) {
		t.Fatalf("expected inflection at the ramp start, got %s", rc.Evidence[0].ObservedAt)
	}
}

func TestAnalyzeDeterministicOrderAndTopK(t *testing.T) {
	store := newStore(t,
		change("c1", "one.go", 5*time.Minute),
		change("c2", "two.go", 5*time.Minute),
		change("c3", "three.go", 5*time.Minute),
		change("c4", "four.go", 1*time.Minute),
	)
	engine := NewCorrelationEngine(store, nil, DefaultCorrelationConfig(), nil)

	first, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected top 3, got %d", len(first))
	}
	if first[0].Identity != "change:c4" || !first[0].Accepted {
		t.Fatalf("expected most proximate change first, got %+v", first[0])
	}
	for i := 1; i < len(first); i++ {
		if first[i].Accepted {
			t.Fatalf("only the first candidate is accepted")
		}
	}
	if first[1].Signature > first[2].Signature {
		t.Fatalf("ties must break by signature ascending")
	}
	for run := 0; run < 5; run++ {
		again, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		for i := range first {
			if again[i].Identity != first[i].Identity {
				t.Fatalf("run %d: order changed at %d", run, i)
			}
		}
	}
}

func TestAnalyzeStoreFailureIsUnavailable(t *testing.T) {
	engine := NewCorrelationEngine(failingStore{err: errors.New("boom")}, nil, DefaultCorrelationConfig(), nil)

	_, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if !errors.Is(err, utils.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestAnalyzeQueryTimeout(t *testing.T) {
	cfg := DefaultCorrelationConfig()
	cfg.QueryTimeout = 20 * time.Millisecond
	engine := NewCorrelationEngine(blockingStore{}, nil, cfg, nil)

	_, err := engine.Analyze(context.Background(), testAlert(), models.TierCore)
	if !errors.Is(err, utils.ErrDataUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unavailable deadline error, got %v", err)
	}
}

func TestAnalyzeRejectsIncompleteAlert(t *testing.T) {
	engine := NewCorrelationEngine(newStore(t), nil, DefaultCorrelationConfig(), nil)
	alert := testAlert()
	alert.ServiceID = ""

	if _, err := engine.Analyze(context.Background(), alert, models.TierCore); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestLookbackPerTier(t *testing.T) {
	cfg := DefaultCorrelationConfig()
	cfg.Lookback[models.TierEdge] = 10 * time.Minute
	engine := NewCorrelationEngine(newStore(t, change("abc", "x.go", 15*time.Minute)), nil, cfg, nil)

	causes, err := engine.Analyze(context.Background(), testAlert(), models.TierEdge)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !causes[0].IsUnknown() {
		t.Fatalf("change outside the edge window should not correlate")
	}
	if engine.Lookback(models.Tier("MYSTERY")) != 30*time.Minute {
		t.Fatalf("unknown tiers fall back to the core window")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 119) + "连接池耗尽"
	got := truncate(s, 120)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("a", 119)+"..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if truncate("short", 120) != "short" {
		t.Fatalf("short strings are unchanged")
	}
}
