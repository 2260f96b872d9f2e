package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-responder/internal/api"
	responderv1 "github.com/miradorstack/mirador-responder/internal/grpc/responderv1"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// AlertPipeline is the part of engine.Pipeline served over gRPC.
type AlertPipeline interface {
	Analyze(ctx context.Context, alert models.Alert) (models.Analysis, error)
	Resolve(ctx context.Context, alertID, kind, resolvedBy string) (models.Analysis, error)
	SubmitFeedback(ctx context.Context, outcome models.Outcome) error
}

// KnowledgeReader exposes stored outcome counters.
type KnowledgeReader interface {
	Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error)
	List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error)
}

// ResponderService implements the gRPC Responder service.
type ResponderService struct {
	responderv1.UnimplementedResponderServer

	logger    *slog.Logger
	pipeline  AlertPipeline
	knowledge KnowledgeReader
	prior     float64
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewResponderService constructs the service facade. prior is reported with
// knowledge lookups so callers can tell an unseen pair from a measured one.
func NewResponderService(logger *slog.Logger, pipeline AlertPipeline, knowledge KnowledgeReader, prior float64) *ResponderService {
	return &ResponderService{
		logger:    utils.OrDefault(logger),
		pipeline:  pipeline,
		knowledge: knowledge,
		prior:     prior,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// AnalyzeAlert correlates an alert and returns the resulting decision.
func (s *ResponderService) AnalyzeAlert(ctx context.Context, req *responderv1.AnalyzeAlertRequest) (*responderv1.AnalyzeAlertResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	alert, err := api.FromProtoAlert(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("AnalyzeAlert called", slog.String("alert_id", alert.ID), slog.String("service", alert.ServiceID))

	start := time.Now()
	analysis, err := s.pipeline.Analyze(ctx, alert)
	duration := time.Since(start)
	if err != nil {
		s.logger.Warn("alert analysis failed", slog.String("alert_id", alert.ID), slog.Any("error", err))
		return nil, toStatus(err)
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("analysis latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return &responderv1.AnalyzeAlertResponse{Analysis: api.ToProtoAnalysis(analysis)}, nil
}

// ResolveDecision records the operator's chosen action. A failed execution
// is reported in the returned analysis rather than as an RPC error.
func (s *ResponderService) ResolveDecision(ctx context.Context, req *responderv1.ResolveDecisionRequest) (*responderv1.ResolveDecisionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	alertID := strings.TrimSpace(req.GetAlertId())
	kind := strings.TrimSpace(req.GetActionKind())
	if alertID == "" || kind == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id and action_kind are required")
	}

	analysis, err := s.pipeline.Resolve(ctx, alertID, kind, req.GetResolvedBy())
	if err != nil {
		if errors.Is(err, utils.ErrExecutionFailure) && analysis.Alert.ID != "" {
			s.logger.Warn("resolved action failed to execute", slog.String("alert_id", alertID), slog.String("action", kind), slog.Any("error", err))
			return &responderv1.ResolveDecisionResponse{Analysis: api.ToProtoAnalysis(analysis)}, nil
		}
		return nil, toStatus(err)
	}
	return &responderv1.ResolveDecisionResponse{Analysis: api.ToProtoAnalysis(analysis)}, nil
}

// SubmitFeedback records an action outcome in the Knowledge Store.
func (s *ResponderService) SubmitFeedback(ctx context.Context, req *responderv1.SubmitFeedbackRequest) (*responderv1.FeedbackAck, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "feedback sink not configured")
	}

	outcome, err := api.FromProtoFeedbackRequest(req, s.now())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.pipeline.SubmitFeedback(ctx, outcome); err != nil {
		s.logger.Error("store feedback failed", slog.Any("error", err))
		return nil, toStatus(err)
	}
	return &responderv1.FeedbackAck{Accepted: true}, nil
}

// GetKnowledge returns the counters for one signature, optionally narrowed to one action kind.
func (s *ResponderService) GetKnowledge(ctx context.Context, req *responderv1.GetKnowledgeRequest) (*responderv1.GetKnowledgeResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.knowledge == nil {
		return nil, status.Error(codes.FailedPrecondition, "knowledge store not configured")
	}
	sig := strings.TrimSpace(req.GetRootCauseSignature())
	if sig == "" {
		return nil, status.Error(codes.InvalidArgument, "root_cause_signature is required")
	}

	var records []models.KnowledgeRecord
	if kind := strings.TrimSpace(req.GetActionKind()); kind != "" {
		rec, err := s.knowledge.Lookup(ctx, sig, kind)
		if err != nil {
			return nil, toStatus(err)
		}
		rec.RootCauseSignature, rec.ActionKind = sig, kind
		records = append(records, rec)
	} else {
		list, err := s.knowledge.List(ctx, sig)
		if err != nil {
			return nil, toStatus(err)
		}
		records = list
	}
	return api.ToProtoKnowledge(records, s.prior), nil
}

// HealthCheck returns the current health state.
func (s *ResponderService) HealthCheck(ctx context.Context, _ *responderv1.HealthRequest) (*responderv1.HealthResponse, error) {
	if s.pipeline == nil {
		return &responderv1.HealthResponse{Status: "DEGRADED"}, nil
	}
	return &responderv1.HealthResponse{Status: "SERVING"}, nil
}

// toStatus maps responder failure classes onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, utils.ErrInvalidArgument), errors.Is(err, utils.ErrInvalidServiceMetadata):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, utils.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, utils.ErrSuperseded):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, utils.ErrExecutionFailure):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, utils.ErrDataUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
