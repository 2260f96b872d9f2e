package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	responderv1 "github.com/miradorstack/mirador-responder/internal/grpc/responderv1"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

type pipelineStub struct {
	analyzeErr  error
	resolveErr  error
	feedbackErr error
	resolved    models.Analysis
	outcomes    []models.Outcome
	alerts      []models.Alert
}

func (p *pipelineStub) Analyze(_ context.Context, alert models.Alert) (models.Analysis, error) {
	p.alerts = append(p.alerts, alert)
	if p.analyzeErr != nil {
		return models.Analysis{}, p.analyzeErr
	}
	return models.Analysis{
		Alert:    alert,
		Decision: models.Decision{ID: "d-1", AlertID: alert.ID, Autonomy: models.AutonomyConfirm},
	}, nil
}

func (p *pipelineStub) Resolve(_ context.Context, alertID, kind, resolvedBy string) (models.Analysis, error) {
	return p.resolved, p.resolveErr
}

func (p *pipelineStub) SubmitFeedback(_ context.Context, outcome models.Outcome) error {
	p.outcomes = append(p.outcomes, outcome)
	return p.feedbackErr
}

type knowledgeStub map[string]models.KnowledgeRecord

func (k knowledgeStub) Lookup(_ context.Context, sig, kind string) (models.KnowledgeRecord, error) {
	return k[sig+"|"+kind], nil
}

func (k knowledgeStub) List(_ context.Context, sig string) ([]models.KnowledgeRecord, error) {
	var out []models.KnowledgeRecord
	for _, rec := range k {
		if rec.RootCauseSignature == sig {
			out = append(out, rec)
		}
	}
	return out, nil
}

func validRequest() *responderv1.AnalyzeAlertRequest {
	return &responderv1.AnalyzeAlertRequest{Alert: &responderv1.Alert{
		Id:        "alert-1",
		ServiceId: "checkout",
		Type:      "latency",
		Severity:  "HIGH",
		Timestamp: timestamppb.New(time.Now()),
	}}
}

func TestAnalyzeAlert(t *testing.T) {
	p := &pipelineStub{}
	svc := NewResponderService(nil, p, nil, 0.5)

	resp, err := svc.AnalyzeAlert(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Analysis.Decision.GetId() != "d-1" {
		t.Fatalf("unexpected decision: %+v", resp.Analysis.Decision)
	}
	if len(p.alerts) != 1 || p.alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("pipeline got %+v", p.alerts)
	}
}

func TestAnalyzeAlertInvalid(t *testing.T) {
	svc := NewResponderService(nil, &pipelineStub{}, nil, 0.5)
	req := validRequest()
	req.Alert.Severity = "loud"

	_, err := svc.AnalyzeAlert(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAnalyzeAlertWithoutPipeline(t *testing.T) {
	svc := NewResponderService(nil, nil, nil, 0.5)
	_, err := svc.AnalyzeAlert(context.Background(), validRequest())
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestAnalyzeAlertErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{utils.Unavailable("correlate", errors.New("store down")), codes.Unavailable},
		{utils.NewAppError("pipeline.analyze", "superseded", utils.ErrSuperseded), codes.Aborted},
		{utils.Invalid("pipeline.analyze", "bad"), codes.InvalidArgument},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		svc := NewResponderService(nil, &pipelineStub{analyzeErr: tc.err}, nil, 0.5)
		_, err := svc.AnalyzeAlert(context.Background(), validRequest())
		if status.Code(err) != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, status.Code(err))
		}
	}
}

func TestResolveDecision(t *testing.T) {
	p := &pipelineStub{resolveErr: utils.NewAppError("pipeline.resolve", "missing", utils.ErrNotFound)}
	svc := NewResponderService(nil, p, nil, 0.5)

	_, err := svc.ResolveDecision(context.Background(), &responderv1.ResolveDecisionRequest{AlertId: "alert-1", ActionKind: "restart"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.ResolveDecision(context.Background(), &responderv1.ResolveDecisionRequest{AlertId: "alert-1"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestResolveDecisionExecutionFailureReturnsAnalysis(t *testing.T) {
	p := &pipelineStub{
		resolved: models.Analysis{
			Alert:     models.Alert{ID: "alert-1"},
			Execution: &models.ExecutionResult{Succeeded: false, Message: "webhook down"},
		},
		resolveErr: utils.NewAppError("pipeline.execute", "restart", errors.Join(utils.ErrExecutionFailure, errors.New("webhook down"))),
	}
	svc := NewResponderService(nil, p, nil, 0.5)

	resp, err := svc.ResolveDecision(context.Background(), &responderv1.ResolveDecisionRequest{AlertId: "alert-1", ActionKind: "restart"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Analysis.Execution == nil || resp.Analysis.Execution.Succeeded {
		t.Fatalf("expected failed execution in response, got %+v", resp.Analysis.Execution)
	}
}

func TestSubmitFeedback(t *testing.T) {
	p := &pipelineStub{}
	svc := NewResponderService(nil, p, nil, 0.5)

	ack, err := svc.SubmitFeedback(context.Background(), &responderv1.SubmitFeedbackRequest{RootCauseSignature: "sig", ActionKind: "restart", Succeeded: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Accepted || len(p.outcomes) != 1 {
		t.Fatalf("expected feedback to be stored")
	}
}

func TestSubmitFeedbackMissingFields(t *testing.T) {
	svc := NewResponderService(nil, &pipelineStub{}, nil, 0.5)

	_, err := svc.SubmitFeedback(context.Background(), &responderv1.SubmitFeedbackRequest{ActionKind: "restart"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSubmitFeedbackUnknownDecision(t *testing.T) {
	p := &pipelineStub{feedbackErr: utils.NewAppError("pipeline.feedback", "unknown decision", utils.ErrNotFound)}
	svc := NewResponderService(nil, p, nil, 0.5)

	_, err := svc.SubmitFeedback(context.Background(), &responderv1.SubmitFeedbackRequest{DecisionId: "nope", ActionKind: "restart"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetKnowledge(t *testing.T) {
	store := knowledgeStub{
		"sig|restart":  {RootCauseSignature: "sig", ActionKind: "restart", Attempts: 2, Successes: 1},
		"sig|rollback": {RootCauseSignature: "sig", ActionKind: "rollback", Attempts: 1, Successes: 1},
	}
	svc := NewResponderService(nil, &pipelineStub{}, store, 0.5)

	all, err := svc.GetKnowledge(context.Background(), &responderv1.GetKnowledgeRequest{RootCauseSignature: "sig"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all.Records) != 2 || all.Prior != 0.5 {
		t.Fatalf("unexpected response: %+v", all)
	}

	unseen, err := svc.GetKnowledge(context.Background(), &responderv1.GetKnowledgeRequest{RootCauseSignature: "sig", ActionKind: "scale-up"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unseen.Records) != 1 || unseen.Records[0].Attempts != 0 || unseen.Records[0].SuccessRate != 0.5 {
		t.Fatalf("unseen pair should report the prior: %+v", unseen.Records)
	}
	if unseen.Records[0].ActionKind != "scale-up" {
		t.Fatalf("lookup should echo the key, got %+v", unseen.Records[0])
	}

	if _, err := svc.GetKnowledge(context.Background(), &responderv1.GetKnowledgeRequest{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	resp, _ := NewResponderService(nil, nil, nil, 0.5).HealthCheck(context.Background(), &responderv1.HealthRequest{})
	if resp.Status != "DEGRADED" {
		t.Fatalf("expected degraded without pipeline, got %s", resp.Status)
	}
	resp, _ = NewResponderService(nil, &pipelineStub{}, nil, 0.5).HealthCheck(context.Background(), &responderv1.HealthRequest{})
	if resp.Status != "SERVING" {
		t.Fatalf("expected serving, got %s", resp.Status)
	}
}
