package responderv1

import "google.golang.org/protobuf/types/known/timestamppb"

type Alert struct {
	Id        string                 `json:"id,omitempty"`
	ServiceId string                 `json:"service_id,omitempty"`
	Type      string                 `json:"type,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Timestamp *timestamppb.Timestamp `json:"timestamp,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
}

func (x *Alert) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

type Service struct {
	Id        string   `json:"id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	Owners    []string `json:"owners,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

type CausalLink struct {
	FromEvidenceRef string                 `json:"from_evidence_ref,omitempty"`
	ToAlertRef      string                 `json:"to_alert_ref,omitempty"`
	LinkType        string                 `json:"link_type,omitempty"`
	Weight          float64                `json:"weight,omitempty"`
	ObservedAt      *timestamppb.Timestamp `json:"observed_at,omitempty"`
}

type RootCause struct {
	Signature   string        `json:"signature,omitempty"`
	Identity    string        `json:"identity,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	Location    string        `json:"location,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	Description string        `json:"description,omitempty"`
	Accepted    bool          `json:"accepted,omitempty"`
	Evidence    []*CausalLink `json:"evidence,omitempty"`
}

type Action struct {
	Kind              string `json:"kind,omitempty"`
	TargetServiceId   string `json:"target_service_id,omitempty"`
	RiskLevel         string `json:"risk_level,omitempty"`
	ImpactDescription string `json:"impact_description,omitempty"`
	DowntimeSeconds   int32  `json:"downtime_seconds,omitempty"`
}

func (x *Action) GetKind() string {
	if x != nil {
		return x.Kind
	}
	return ""
}

type RankedAction struct {
	Action               *Action `json:"action,omitempty"`
	PredictedSuccessRate float64 `json:"predicted_success_rate,omitempty"`
}

type Escalation struct {
	Page    bool   `json:"page,omitempty"`
	Urgency string `json:"urgency,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Decision struct {
	Id                 string                 `json:"id,omitempty"`
	AlertId            string                 `json:"alert_id,omitempty"`
	ServiceId          string                 `json:"service_id,omitempty"`
	RootCauseSignature string                 `json:"root_cause_signature,omitempty"`
	Confidence         float64                `json:"confidence,omitempty"`
	RankedActions      []*RankedAction        `json:"ranked_actions,omitempty"`
	Autonomy           string                 `json:"autonomy,omitempty"`
	ChosenAction       *Action                `json:"chosen_action,omitempty"`
	Escalation         *Escalation            `json:"escalation,omitempty"`
	Notes              []string               `json:"notes,omitempty"`
	CreatedAt          *timestamppb.Timestamp `json:"created_at,omitempty"`
	ResolvedAt         *timestamppb.Timestamp `json:"resolved_at,omitempty"`
	ResolvedBy         string                 `json:"resolved_by,omitempty"`
}

func (x *Decision) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

type ExecutionResult struct {
	Succeeded  bool                   `json:"succeeded,omitempty"`
	ExecutedAt *timestamppb.Timestamp `json:"executed_at,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

type Analysis struct {
	Alert            *Alert           `json:"alert,omitempty"`
	Service          *Service         `json:"service,omitempty"`
	RootCauses       []*RootCause     `json:"root_causes,omitempty"`
	AffectedServices []string         `json:"affected_services,omitempty"`
	Decision         *Decision        `json:"decision,omitempty"`
	Duplicate        bool             `json:"duplicate,omitempty"`
	DuplicateOf      string           `json:"duplicate_of,omitempty"`
	Execution        *ExecutionResult `json:"execution,omitempty"`
}

type AnalyzeAlertRequest struct {
	Alert *Alert `json:"alert,omitempty"`
}

func (x *AnalyzeAlertRequest) GetAlert() *Alert {
	if x != nil {
		return x.Alert
	}
	return nil
}

type AnalyzeAlertResponse struct {
	Analysis *Analysis `json:"analysis,omitempty"`
}

type ResolveDecisionRequest struct {
	AlertId    string `json:"alert_id,omitempty"`
	ActionKind string `json:"action_kind,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

func (x *ResolveDecisionRequest) GetAlertId() string {
	if x != nil {
		return x.AlertId
	}
	return ""
}

func (x *ResolveDecisionRequest) GetActionKind() string {
	if x != nil {
		return x.ActionKind
	}
	return ""
}

func (x *ResolveDecisionRequest) GetResolvedBy() string {
	if x != nil {
		return x.ResolvedBy
	}
	return ""
}

type ResolveDecisionResponse struct {
	Analysis *Analysis `json:"analysis,omitempty"`
}

type SubmitFeedbackRequest struct {
	RootCauseSignature string `json:"root_cause_signature,omitempty"`
	ActionKind         string `json:"action_kind,omitempty"`
	Succeeded          bool   `json:"succeeded,omitempty"`
	DecisionId         string `json:"decision_id,omitempty"`
}

func (x *SubmitFeedbackRequest) GetRootCauseSignature() string {
	if x != nil {
		return x.RootCauseSignature
	}
	return ""
}

func (x *SubmitFeedbackRequest) GetActionKind() string {
	if x != nil {
		return x.ActionKind
	}
	return ""
}

func (x *SubmitFeedbackRequest) GetSucceeded() bool {
	if x != nil {
		return x.Succeeded
	}
	return false
}

func (x *SubmitFeedbackRequest) GetDecisionId() string {
	if x != nil {
		return x.DecisionId
	}
	return ""
}

type FeedbackAck struct {
	Accepted bool `json:"accepted,omitempty"`
}

type GetKnowledgeRequest struct {
	RootCauseSignature string `json:"root_cause_signature,omitempty"`
	ActionKind         string `json:"action_kind,omitempty"`
}

func (x *GetKnowledgeRequest) GetRootCauseSignature() string {
	if x != nil {
		return x.RootCauseSignature
	}
	return ""
}

func (x *GetKnowledgeRequest) GetActionKind() string {
	if x != nil {
		return x.ActionKind
	}
	return ""
}

type KnowledgeRecord struct {
	RootCauseSignature string  `json:"root_cause_signature,omitempty"`
	ActionKind         string  `json:"action_kind,omitempty"`
	Attempts           int64   `json:"attempts,omitempty"`
	Successes          int64   `json:"successes,omitempty"`
	SuccessRate        float64 `json:"success_rate,omitempty"`
}

type GetKnowledgeResponse struct {
	Prior   float64            `json:"prior,omitempty"`
	Records []*KnowledgeRecord `json:"records,omitempty"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status,omitempty"`
}
