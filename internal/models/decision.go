package models

import "time"

// Impact estimates the cost of running an action.
type Impact struct {
	Description     string `json:"description" yaml:"description"`
	DowntimeSeconds int    `json:"downtime_seconds" yaml:"downtimeSeconds"`
}

// Action is a remediation step drawn from the action catalog.
type Action struct {
	Kind            string    `json:"kind"`
	TargetServiceID string    `json:"target_service_id"`
	EstimatedImpact Impact    `json:"estimated_impact"`
	RiskLevel       RiskLevel `json:"risk_level"`
}

// RankedAction pairs an action with its learned success rate.
type RankedAction struct {
	Action               Action  `json:"action"`
	PredictedSuccessRate float64 `json:"predicted_success_rate"`
}

// Escalation describes whether and how urgently a human is paged.
type Escalation struct {
	Page    bool   `json:"page"`
	Urgency string `json:"urgency"`
	Reason  string `json:"reason,omitempty"`
}

// Decision is the remediation verdict for one alert.
type Decision struct {
	ID                 string         `json:"id"`
	AlertID            string         `json:"alert_id"`
	ServiceID          string         `json:"service_id"`
	RootCauseSignature string         `json:"root_cause_signature"`
	Confidence         float64        `json:"confidence"`
	RankedActions      []RankedAction `json:"ranked_actions"`
	Autonomy           Autonomy       `json:"autonomy"`
	ChosenAction       *Action        `json:"chosen_action,omitempty"`
	Escalation         Escalation     `json:"escalation"`
	Notes              []string       `json:"notes,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy         string         `json:"resolved_by,omitempty"`
}

// Top returns the highest ranked action, if any.
func (d Decision) Top() (Action, bool) {
	if len(d.RankedActions) == 0 {
		return Action{}, false
	}
	return d.RankedActions[0].Action, true
}

// Find returns the ranked action with the given kind.
func (d Decision) Find(kind string) (Action, bool) {
	for _, ra := range d.RankedActions {
		if ra.Action.Kind == kind {
			return ra.Action, true
		}
	}
	return Action{}, false
}

// Resolved reports whether an action has been chosen.
func (d Decision) Resolved() bool { return d.ChosenAction != nil }

// KnowledgeRecord accumulates outcomes for one signature and action kind.
type KnowledgeRecord struct {
	RootCauseSignature string `json:"root_cause_signature"`
	ActionKind         string `json:"action_kind"`
	Attempts           int64  `json:"attempts"`
	Successes          int64  `json:"successes"`
}

// SuccessRate returns successes/attempts, or prior when nothing was attempted.
func (k KnowledgeRecord) SuccessRate(prior float64) float64 {
	if k.Attempts <= 0 {
		return prior
	}
	rate := float64(k.Successes) / float64(k.Attempts)
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

// Outcome is a reported result of executing an action.
type Outcome struct {
	RootCauseSignature string    `json:"root_cause_signature"`
	ActionKind         string    `json:"action_kind"`
	Succeeded          bool      `json:"succeeded"`
	DecisionID         string    `json:"decision_id,omitempty"`
	ReportedAt         time.Time `json:"reported_at"`
}

// ExecutionResult is what an executor reports after running an action.
type ExecutionResult struct {
	Succeeded  bool      `json:"succeeded"`
	ExecutedAt time.Time `json:"executed_at"`
	Message    string    `json:"message,omitempty"`
}

// Analysis bundles everything produced for one alert. AffectedServices are
// the registered services depending on Service, directly or transitively,
// nearest first. DuplicateOf names the alert that owns Decision when
// Duplicate is set.
type Analysis struct {
	Alert            Alert            `json:"alert"`
	Service          Service          `json:"service"`
	RootCauses       []RootCause      `json:"root_causes"`
	AffectedServices []string         `json:"affected_services,omitempty"`
	Decision         Decision         `json:"decision"`
	Duplicate        bool             `json:"duplicate,omitempty"`
	DuplicateOf      string           `json:"duplicate_of,omitempty"`
	Execution        *ExecutionResult `json:"execution,omitempty"`
}
