package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	responderv1 "github.com/miradorstack/mirador-responder/internal/grpc/responderv1"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// FromProtoAlert converts an AnalyzeAlert request into a domain alert.
func FromProtoAlert(req *responderv1.AnalyzeAlertRequest) (models.Alert, error) {
	in := req.GetAlert()
	if in == nil {
		return models.Alert{}, errors.New("alert is required")
	}
	if strings.TrimSpace(in.Id) == "" {
		return models.Alert{}, errors.New("alert id is required")
	}
	if strings.TrimSpace(in.ServiceId) == "" {
		return models.Alert{}, errors.New("alert service_id is required")
	}
	sev, ok := models.ParseSeverity(in.Severity)
	if !ok {
		return models.Alert{}, fmt.Errorf("unknown severity %q", in.Severity)
	}
	if in.Timestamp == nil {
		return models.Alert{}, errors.New("alert timestamp is required")
	}
	if err := in.Timestamp.CheckValid(); err != nil {
		return models.Alert{}, fmt.Errorf("invalid alert timestamp: %w", err)
	}

	alert := models.Alert{
		ID:        strings.TrimSpace(in.Id),
		ServiceID: strings.TrimSpace(in.ServiceId),
		Type:      strings.TrimSpace(in.Type),
		Severity:  sev,
		Timestamp: in.Timestamp.AsTime().UTC(),
	}
	if len(in.Labels) > 0 {
		alert.RawPayload = make(map[string]any, len(in.Labels))
		for k, v := range in.Labels {
			alert.RawPayload[k] = v
		}
	}
	return alert, nil
}

// FromProtoFeedbackRequest converts a SubmitFeedback request into an outcome report.
func FromProtoFeedbackRequest(req *responderv1.SubmitFeedbackRequest, now time.Time) (models.Outcome, error) {
	if req == nil {
		return models.Outcome{}, errors.New("request cannot be nil")
	}
	if req.GetDecisionId() == "" && req.GetRootCauseSignature() == "" {
		return models.Outcome{}, errors.New("root_cause_signature or decision_id is required")
	}
	if strings.TrimSpace(req.GetActionKind()) == "" {
		return models.Outcome{}, errors.New("action_kind is required")
	}
	return models.Outcome{
		RootCauseSignature: req.GetRootCauseSignature(),
		ActionKind:         strings.TrimSpace(req.GetActionKind()),
		Succeeded:          req.GetSucceeded(),
		DecisionID:         req.GetDecisionId(),
		ReportedAt:         now.UTC(),
	}, nil
}

// ToProtoAnalysis converts a pipeline analysis into its wire form.
func ToProtoAnalysis(a models.Analysis) *responderv1.Analysis {
	out := &responderv1.Analysis{
		Alert:            toProtoAlert(a.Alert),
		Service:          toProtoService(a.Service),
		AffectedServices: a.AffectedServices,
		Decision:         ToProtoDecision(a.Decision),
		Duplicate:        a.Duplicate,
		DuplicateOf:      a.DuplicateOf,
	}
	for _, rc := range a.RootCauses {
		out.RootCauses = append(out.RootCauses, toProtoRootCause(rc))
	}
	if a.Execution != nil {
		out.Execution = &responderv1.ExecutionResult{
			Succeeded:  a.Execution.Succeeded,
			ExecutedAt: timestamp(a.Execution.ExecutedAt),
			Message:    a.Execution.Message,
		}
	}
	return out
}

// ToProtoDecision converts a decision into its wire form.
func ToProtoDecision(d models.Decision) *responderv1.Decision {
	out := &responderv1.Decision{
		Id:                 d.ID,
		AlertId:            d.AlertID,
		ServiceId:          d.ServiceID,
		RootCauseSignature: d.RootCauseSignature,
		Confidence:         d.Confidence,
		Autonomy:           string(d.Autonomy),
		Escalation: &responderv1.Escalation{
			Page:    d.Escalation.Page,
			Urgency: d.Escalation.Urgency,
			Reason:  d.Escalation.Reason,
		},
		Notes:      append([]string(nil), d.Notes...),
		CreatedAt:  timestamp(d.CreatedAt),
		ResolvedBy: d.ResolvedBy,
	}
	for _, ra := range d.RankedActions {
		out.RankedActions = append(out.RankedActions, &responderv1.RankedAction{
			Action:               toProtoAction(ra.Action),
			PredictedSuccessRate: ra.PredictedSuccessRate,
		})
	}
	if d.ChosenAction != nil {
		out.ChosenAction = toProtoAction(*d.ChosenAction)
	}
	if d.ResolvedAt != nil {
		out.ResolvedAt = timestamp(*d.ResolvedAt)
	}
	return out
}

// ToProtoKnowledge converts knowledge records, computing each rate against prior.
func ToProtoKnowledge(records []models.KnowledgeRecord, prior float64) *responderv1.GetKnowledgeResponse {
	out := &responderv1.GetKnowledgeResponse{Prior: prior}
	for _, rec := range records {
		out.Records = append(out.Records, &responderv1.KnowledgeRecord{
			RootCauseSignature: rec.RootCauseSignature,
			ActionKind:         rec.ActionKind,
			Attempts:           rec.Attempts,
			Successes:          rec.Successes,
			SuccessRate:        utils.Clamp01(rec.SuccessRate(prior)),
		})
	}
	return out
}

func toProtoAlert(a models.Alert) *responderv1.Alert {
	out := &responderv1.Alert{
		Id:        a.ID,
		ServiceId: a.ServiceID,
		Type:      a.Type,
		Severity:  string(a.Severity),
		Timestamp: timestamp(a.Timestamp),
	}
	if len(a.RawPayload) > 0 {
		out.Labels = make(map[string]string, len(a.RawPayload))
		for k, v := range a.RawPayload {
			out.Labels[k] = fmt.Sprint(v)
		}
	}
	return out
}

func toProtoService(s models.Service) *responderv1.Service {
	if s.ID == "" {
		return nil
	}
	return &responderv1.Service{
		Id:        s.ID,
		Name:      s.Name,
		Tier:      string(s.Tier),
		Owners:    append([]string(nil), s.Owners...),
		DependsOn: append([]string(nil), s.DependsOn...),
	}
}

func toProtoRootCause(rc models.RootCause) *responderv1.RootCause {
	out := &responderv1.RootCause{
		Signature:   rc.Signature,
		Identity:    rc.Identity,
		Kind:        string(rc.Kind),
		Location:    rc.Location,
		Confidence:  rc.Confidence,
		Description: rc.Description,
		Accepted:    rc.Accepted,
	}
	for _, link := range rc.Evidence {
		out.Evidence = append(out.Evidence, &responderv1.CausalLink{
			FromEvidenceRef: link.FromEvidenceRef,
			ToAlertRef:      link.ToAlertRef,
			LinkType:        string(link.LinkType),
			Weight:          link.Weight,
			ObservedAt:      timestamp(link.ObservedAt),
		})
	}
	return out
}

func toProtoAction(a models.Action) *responderv1.Action {
	return &responderv1.Action{
		Kind:              a.Kind,
		TargetServiceId:   a.TargetServiceID,
		RiskLevel:         string(a.RiskLevel),
		ImpactDescription: a.EstimatedImpact.Description,
		DowntimeSeconds:   int32(a.EstimatedImpact.DowntimeSeconds),
	}
}

func timestamp(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}
