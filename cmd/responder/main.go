package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-responder/internal/api"
	"github.com/miradorstack/mirador-responder/internal/config"
	"github.com/miradorstack/mirador-responder/internal/engine"
	"github.com/miradorstack/mirador-responder/internal/evidence"
	"github.com/miradorstack/mirador-responder/internal/httpapi"
	"github.com/miradorstack/mirador-responder/internal/knowledge"
	"github.com/miradorstack/mirador-responder/internal/metrics"
	"github.com/miradorstack/mirador-responder/internal/services"
	"github.com/miradorstack/mirador-responder/internal/stream"
	"github.com/miradorstack/mirador-responder/internal/suppress"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-responder",
		slog.String("address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceMap, err := config.LoadServices(cfg.Services)
	if err != nil {
		logger.Error("failed to load services", slog.Any("error", err))
		os.Exit(1)
	}
	hotPaths, err := engine.LoadHotPaths(cfg.Correlation.HotPathsPath, logger)
	if err != nil {
		logger.Error("failed to load hot paths", slog.Any("error", err))
		os.Exit(1)
	}
	catalog, err := engine.LoadCatalog(cfg.Decision.CatalogPath, logger)
	if err != nil {
		logger.Error("failed to load action catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		evidenceStore evidence.Store
		appender      evidence.Appender
	)
	if cfg.Evidence.Remote.BaseURL != "" {
		evidenceStore = evidence.NewHTTPSource(cfg.Evidence.Remote.BaseURL, cfg.Evidence.Remote.QueryPath, cfg.Evidence.Remote.Timeout)
		logger.Info("reading evidence from remote source", slog.String("base_url", cfg.Evidence.Remote.BaseURL))
	} else {
		mem := evidence.NewMemoryStore()
		evidenceStore, appender = mem, mem
		go pruneEvidence(ctx, mem, cfg.Evidence.Retention, logger)
	}

	cacheProvider := openCache(cfg.Cache, logger)
	defer cacheProvider.Close()

	store, storeCloser, err := openKnowledge(ctx, cfg.Knowledge)
	if err != nil {
		logger.Error("failed to open knowledge store", slog.Any("error", err))
		os.Exit(1)
	}
	defer storeCloser.Close()
	cachedStore := knowledge.NewCachedStore(store, cacheProvider, cfg.Cache.KnowledgeTTL, logger)
	estimator := knowledge.NewEstimator(cachedStore, cfg.Decision.Prior, cfg.Decision.KnowledgeTimeout, logger)
	feedbackSink := knowledge.NewFeedbackSink(estimator, catalog, logger)

	hub := httpapi.NewHub(httpapi.DefaultHubConfig(), logger)
	defer hub.Close()

	sinks, closers, err := decisionSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure decision sinks", slog.Any("error", err))
		os.Exit(1)
	}
	sinks = append([]engine.DecisionSink{hub}, sinks...)
	defer closeAll(closers, logger)

	pipeline := engine.NewPipeline(engine.PipelineOptions{
		Correlator:  engine.NewCorrelationEngine(evidenceStore, hotPaths, correlationConfig(cfg.Correlation), logger),
		Decider:     engine.NewDecisionEngine(catalog, estimator, autonomyPolicy(cfg.Autonomy), logger),
		Feedback:    feedbackSink,
		Executor:    newExecutor(cfg.Executor, logger),
		Sinks:       sinks,
		Suppressor:  suppress.New(cacheProvider, cfg.Cache.SuppressionCooldown, logger),
		Services:    serviceMap,
		AutoExecute: cfg.Decision.AutoExecute,
		Logger:      logger,
	})

	responderService := services.NewResponderService(logger, pipeline, cachedStore, estimator.Prior())
	server, err := api.NewServer(cfg.Server, responderService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var httpServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		httpServer = &http.Server{
			Addr: cfg.Server.HTTPAddress,
			Handler: httpapi.NewRouter(httpapi.Options{
				Responder: pipeline,
				Knowledge: cachedStore,
				Evidence:  appender,
				Changes:   evidenceStore,
				Hub:       hub,
				Prior:     estimator.Prior(),
				Logger:    logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if cfg.Kafka.Enabled && cfg.Kafka.FeedbackTopic != "" {
		consumer := stream.NewFeedbackConsumer(cfg.Kafka.Brokers, cfg.Kafka.FeedbackTopic, cfg.Kafka.GroupID, pipeline, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("feedback consumer exited", slog.Any("error", err))
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	hub.Close()
	server.Shutdown(shutdownCtx)

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("mirador-responder stopped")
}

// pruneEvidence drops in-memory evidence older than retention.
func pruneEvidence(ctx context.Context, store *evidence.MemoryStore, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Prune(now.Add(-retention)); n > 0 {
				logger.Debug("pruned evidence", slog.Int("removed", n), slog.Int("remaining", store.Len()))
			}
		}
	}
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", slog.Any("error", err))
		}
	}
}
