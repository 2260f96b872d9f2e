package knowledge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-responder/internal/metrics"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// KindRegistry reports whether an action kind exists in the action catalog.
type KindRegistry interface {
	HasKind(kind string) bool
}

// FeedbackSink validates outcome reports and folds them into the Knowledge Store.
type FeedbackSink struct {
	estimator *Estimator
	kinds     KindRegistry
	logger    *slog.Logger
	now       func() time.Time
}

// NewFeedbackSink builds a sink. A nil registry accepts any non-empty kind.
func NewFeedbackSink(estimator *Estimator, kinds KindRegistry, logger *slog.Logger) *FeedbackSink {
	return &FeedbackSink{estimator: estimator, kinds: kinds, logger: utils.OrDefault(logger), now: time.Now}
}

// Record validates and stores one outcome.
func (s *FeedbackSink) Record(ctx context.Context, outcome models.Outcome) error {
	const op = "feedback.record"
	sig := strings.TrimSpace(outcome.RootCauseSignature)
	kind := strings.TrimSpace(outcome.ActionKind)
	if sig == "" {
		metrics.ObserveFeedback(metrics.FeedbackRejected)
		return utils.Invalid(op, "root cause signature is required")
	}
	if kind == "" {
		metrics.ObserveFeedback(metrics.FeedbackRejected)
		return utils.Invalid(op, "action kind is required")
	}
	if s.kinds != nil && !s.kinds.HasKind(kind) {
		metrics.ObserveFeedback(metrics.FeedbackRejected)
		return utils.Invalid(op, "unknown action kind %q", kind)
	}

	if err := s.estimator.Record(ctx, sig, kind, outcome.Succeeded); err != nil {
		metrics.ObserveKnowledgeError("record")
		return err
	}

	result := metrics.FeedbackSucceeded
	if !outcome.Succeeded {
		result = metrics.FeedbackFailed
	}
	metrics.ObserveFeedback(result)
	s.logger.Info("outcome recorded",
		"signature", sig,
		"action", kind,
		"succeeded", outcome.Succeeded,
		"decision_id", outcome.DecisionID,
	)
	return nil
}

// RecordExecution turns an executor result into an outcome report.
func (s *FeedbackSink) RecordExecution(ctx context.Context, decision models.Decision, action models.Action, result models.ExecutionResult) error {
	reportedAt := result.ExecutedAt
	if reportedAt.IsZero() {
		reportedAt = s.now()
	}
	return s.Record(ctx, models.Outcome{
		RootCauseSignature: decision.RootCauseSignature,
		ActionKind:         action.Kind,
		Succeeded:          result.Succeeded,
		DecisionID:         decision.ID,
		ReportedAt:         reportedAt,
	})
}
