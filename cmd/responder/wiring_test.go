package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/mirador-responder/internal/cache"
	"github.com/miradorstack/mirador-responder/internal/config"
	"github.com/miradorstack/mirador-responder/internal/executor"
	"github.com/miradorstack/mirador-responder/internal/knowledge"
	"github.com/miradorstack/mirador-responder/internal/models"
)

func TestCorrelationConfigMapsTiers(t *testing.T) {
	cfg := config.CorrelationConfig{
		Lookback:     config.TierDurations{Core: 30 * time.Minute, Edge: 20 * time.Minute, Test: 10 * time.Minute},
		MetricWindow: 5 * time.Minute,
		TopK:         3,
	}
	out := correlationConfig(cfg)
	if out.Lookback[models.TierEdge] != 20*time.Minute || out.Lookback[models.TierTest] != 10*time.Minute {
		t.Fatalf("unexpected lookback map: %v", out.Lookback)
	}
	if out.DefaultLookback != 30*time.Minute || out.TopK != 3 {
		t.Fatalf("unexpected config: %+v", out)
	}
}

func TestAutonomyPolicyFromConfig(t *testing.T) {
	policy := autonomyPolicy(config.AutonomyConfig{
		Core:              config.TierPolicy{MaxRisk: "medium", MinConfidence: 0.95},
		Edge:              config.TierPolicy{MaxRisk: "LOW", MinConfidence: 0.8},
		Test:              config.TierPolicy{ReportOnly: true},
		DowngradeCritical: true,
	})
	core, ok := policy.For(models.TierCore)
	if !ok || core.MaxRisk != models.RiskMedium || core.MinConfidence != 0.95 {
		t.Fatalf("unexpected core policy: %+v", core)
	}
	if got := policy.Verdict(models.TierTest, models.RiskLow, 1, models.SeverityLow); got != models.AutonomyReportOnly {
		t.Fatalf("test tier should be report-only, got %s", got)
	}
}

func TestAutonomyPolicyKeepsSafetyFloor(t *testing.T) {
	policy := autonomyPolicy(config.AutonomyConfig{
		Core: config.TierPolicy{MaxRisk: "HIGH", MinConfidence: 0},
		Edge: config.TierPolicy{MaxRisk: "HIGH", MinConfidence: 0},
		Test: config.TierPolicy{MaxRisk: "HIGH", MinConfidence: 0},
	})
	if got := policy.Verdict(models.TierTest, models.RiskLow, 1, models.SeverityLow); got != models.AutonomyReportOnly {
		t.Fatalf("test tier must stay report-only, got %s", got)
	}
	if got := policy.Verdict(models.TierEdge, models.RiskLow, 1, models.SeverityCritical); got == models.AutonomyAuto {
		t.Fatalf("critical alert must not run unattended")
	}
}

func TestOpenKnowledgeDrivers(t *testing.T) {
	ctx := context.Background()

	store, closer, err := openKnowledge(ctx, config.KnowledgeConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*knowledge.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	_ = closer.Close()

	dsn := filepath.Join(t.TempDir(), "knowledge.db")
	store, closer, err = openKnowledge(ctx, config.KnowledgeConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer closer.Close()
	if _, err := store.RecordOutcome(ctx, "sig", "restart", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec, err := store.Lookup(ctx, "sig", "restart")
	if err != nil || rec.Attempts != 1 || rec.Successes != 1 {
		t.Fatalf("lookup: %+v %v", rec, err)
	}

	if _, _, err := openKnowledge(ctx, config.KnowledgeConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpenCacheFallsBackToMemory(t *testing.T) {
	provider := openCache(config.CacheConfig{Enabled: false}, nil)
	if _, ok := provider.(*cache.MemoryProvider); !ok {
		t.Fatalf("expected memory provider, got %T", provider)
	}
}

func TestNewExecutorModes(t *testing.T) {
	if _, ok := newExecutor(config.ExecutorConfig{Mode: "dryrun"}, nil).(*executor.DryRun); !ok {
		t.Fatalf("expected dry-run executor")
	}
	if _, ok := newExecutor(config.ExecutorConfig{Mode: "webhook", URL: "http://localhost:9", Timeout: time.Second}, nil).(*executor.Webhook); !ok {
		t.Fatalf("expected webhook executor")
	}
}

func TestDecisionSinksDisabledByDefault(t *testing.T) {
	cfg := &config.Config{}
	sinks, closers, err := decisionSinks(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sinks) != 0 || len(closers) != 0 {
		t.Fatalf("expected no sinks, got %d", len(sinks))
	}
}
