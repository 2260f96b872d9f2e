package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-responder/internal/audit"
	"github.com/miradorstack/mirador-responder/internal/cache"
	"github.com/miradorstack/mirador-responder/internal/config"
	"github.com/miradorstack/mirador-responder/internal/engine"
	"github.com/miradorstack/mirador-responder/internal/executor"
	"github.com/miradorstack/mirador-responder/internal/knowledge"
	"github.com/miradorstack/mirador-responder/internal/knowledge/pgstore"
	"github.com/miradorstack/mirador-responder/internal/knowledge/sqlstore"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/stream"
)

func correlationConfig(cfg config.CorrelationConfig) engine.CorrelationConfig {
	return engine.CorrelationConfig{
		Lookback: map[models.Tier]time.Duration{
			models.TierCore: cfg.Lookback.Core,
			models.TierEdge: cfg.Lookback.Edge,
			models.TierTest: cfg.Lookback.Test,
		},
		DefaultLookback:  cfg.Lookback.Core,
		MetricWindow:     cfg.MetricWindow,
		LogWindow:        cfg.LogWindow,
		TemporalWeight:   cfg.TemporalWeight,
		MetricSaturation: cfg.MetricSaturation,
		HotPathBoost:     cfg.HotPathBoost,
		TopK:             cfg.TopK,
		QueryTimeout:     cfg.QueryTimeout,
	}
}

func tierPolicy(p config.TierPolicy) engine.TierPolicy {
	risk, ok := models.ParseRiskLevel(p.MaxRisk)
	if !ok {
		risk = models.RiskLow
	}
	return engine.TierPolicy{ReportOnly: p.ReportOnly, MaxRisk: risk, MinConfidence: p.MinConfidence}
}

func autonomyPolicy(cfg config.AutonomyConfig) engine.AutonomyPolicy {
	return engine.AutonomyPolicy{
		Tiers: map[models.Tier]engine.TierPolicy{
			models.TierCore: tierPolicy(cfg.Core),
			models.TierEdge: tierPolicy(cfg.Edge),
			models.TierTest: tierPolicy(cfg.Test),
		},
	}
}

// openCache returns the Valkey provider when configured, otherwise an
// in-process cache. The process keeps running when Valkey is unreachable.
func openCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled || cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openKnowledge selects the Knowledge Store backend. The sqlite and postgres
// stores apply their schema on open.
func openKnowledge(ctx context.Context, cfg config.KnowledgeConfig) (knowledge.Store, io.Closer, error) {
	switch cfg.Driver {
	case "", "memory":
		return knowledge.NewMemoryStore(), nopCloser{}, nil
	case "sqlite":
		store, err := sqlstore.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite knowledge store: %w", err)
		}
		return store, store, nil
	case "postgres":
		store, err := pgstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres knowledge store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported knowledge driver %q", cfg.Driver)
	}
}

func newExecutor(cfg config.ExecutorConfig, logger *slog.Logger) engine.Executor {
	if cfg.Mode == "webhook" {
		return executor.NewWebhook(cfg.URL, cfg.Token, cfg.Timeout, logger)
	}
	return executor.NewDryRun(logger)
}

// decisionSinks builds the configured downstream sinks. The returned closers
// are released on shutdown.
func decisionSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]engine.DecisionSink, []io.Closer, error) {
	var (
		sinks   []engine.DecisionSink
		closers []io.Closer
	)
	if cfg.Kafka.Enabled {
		publisher := stream.NewDecisionPublisher(cfg.Kafka.Brokers, cfg.Kafka.DecisionsTopic, logger)
		sinks = append(sinks, publisher)
		closers = append(closers, publisher)
	}
	if cfg.Audit.Enabled {
		archive, err := audit.NewS3Sink(ctx, audit.S3Config{
			Bucket:          cfg.Audit.Bucket,
			Prefix:          cfg.Audit.Prefix,
			Region:          cfg.Audit.Region,
			Endpoint:        cfg.Audit.Endpoint,
			AccessKeyID:     cfg.Audit.AccessKeyID,
			SecretAccessKey: cfg.Audit.SecretAccessKey,
			UsePathStyle:    cfg.Audit.UsePathStyle,
			Timeout:         cfg.Audit.Timeout,
		}, logger)
		if err != nil {
			return nil, closers, fmt.Errorf("audit archive: %w", err)
		}
		sinks = append(sinks, archive)
	}
	return sinks, closers, nil
}
