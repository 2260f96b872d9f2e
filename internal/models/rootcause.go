package models

import "time"

// LinkType names the rule that produced a causal link.
type LinkType string

const (
	LinkTemporal          LinkType = "TEMPORAL"
	LinkMetricCorrelation LinkType = "METRIC_CORRELATION"
	LinkChangeProximity   LinkType = "CHANGE_PROXIMITY"
	// LinkUnknown marks the placeholder root cause emitted when nothing correlates.
	LinkUnknown LinkType = "UNKNOWN"
)

// CausalLink records why a piece of evidence is believed to relate to an alert.
type CausalLink struct {
	FromEvidenceRef string    `json:"from_evidence_ref"`
	ToAlertRef      string    `json:"to_alert_ref"`
	LinkType        LinkType  `json:"link_type"`
	Weight          float64   `json:"weight"`
	ObservedAt      time.Time `json:"observed_at"`
}

// RootCause is one ranked hypothesis for an alert.
type RootCause struct {
	AlertID     string       `json:"alert_id"`
	ServiceID   string       `json:"service_id"`
	Signature   string       `json:"signature"`
	Identity    string       `json:"identity"`
	Kind        LinkType     `json:"kind"`
	Location    string       `json:"location"`
	Confidence  float64      `json:"confidence"`
	Evidence    []CausalLink `json:"evidence"`
	Description string       `json:"description,omitempty"`
	Accepted    bool         `json:"accepted"`
}

// LatestEvidence returns the most recent observation time among the links.
func (r RootCause) LatestEvidence() time.Time {
	var latest time.Time
	for _, link := range r.Evidence {
		if link.ObservedAt.After(latest) {
			latest = link.ObservedAt
		}
	}
	return latest
}

// IsUnknown reports whether this is the no-evidence placeholder.
func (r RootCause) IsUnknown() bool { return r.Kind == LinkUnknown }

// Service is the configured metadata for a monitored service. DependsOn
// lists the IDs of services it calls.
type Service struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Tier      Tier     `json:"tier" yaml:"tier"`
	Owners    []string `json:"owners,omitempty" yaml:"owners"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"dependsOn"`
}
