package models

import (
	"fmt"
	"time"
)

// EvidenceKind enumerates the closed set of evidence variants.
type EvidenceKind string

const (
	EvidenceAlert  EvidenceKind = "ALERT"
	EvidenceMetric EvidenceKind = "METRIC"
	EvidenceLog    EvidenceKind = "LOG"
	EvidenceChange EvidenceKind = "CHANGE"
)

// Alert is an already-flagged signal that triggers an analysis.
type Alert struct {
	ID         string         `json:"id"`
	ServiceID  string         `json:"service_id"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	RawPayload map[string]any `json:"raw_payload,omitempty"`
}

// MetricSample is a single observed metric value.
type MetricSample struct {
	ServiceID string    `json:"service_id"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
}

// LogEvent is a single log line reduced to key, text and level.
type LogEvent struct {
	ServiceID string    `json:"service_id"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	Severity  Severity  `json:"severity"`
}

// LineRange bounds the lines touched by a change; zero values mean unknown.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two ranges share at least one line. Unknown ranges overlap everything.
func (r LineRange) Overlaps(other LineRange) bool {
	if r.Start <= 0 || other.Start <= 0 {
		return true
	}
	rEnd, oEnd := r.End, other.End
	if rEnd < r.Start {
		rEnd = r.Start
	}
	if oEnd < other.Start {
		oEnd = other.Start
	}
	return r.Start <= oEnd && other.Start <= rEnd
}

// ChangeEvent is a code change that may have caused an incident.
type ChangeEvent struct {
	ServiceID   string    `json:"service_id"`
	CommitID    string    `json:"commit_id"`
	Author      string    `json:"author"`
	Timestamp   time.Time `json:"timestamp"`
	File        string    `json:"file"`
	LineRange   LineRange `json:"line_range"`
	DiffSummary string    `json:"diff_summary"`
}

// Evidence is a tagged variant; exactly one payload matches Kind.
type Evidence struct {
	Kind   EvidenceKind  `json:"kind"`
	Alert  *Alert        `json:"alert,omitempty"`
	Metric *MetricSample `json:"metric,omitempty"`
	Log    *LogEvent     `json:"log,omitempty"`
	Change *ChangeEvent  `json:"change,omitempty"`
}

// AlertEvidence wraps an alert.
func AlertEvidence(a Alert) Evidence { return Evidence{Kind: EvidenceAlert, Alert: &a} }

// MetricEvidence wraps a metric sample.
func MetricEvidence(m MetricSample) Evidence { return Evidence{Kind: EvidenceMetric, Metric: &m} }

// LogEvidence wraps a log event.
func LogEvidence(l LogEvent) Evidence { return Evidence{Kind: EvidenceLog, Log: &l} }

// ChangeEvidence wraps a change event.
func ChangeEvidence(c ChangeEvent) Evidence { return Evidence{Kind: EvidenceChange, Change: &c} }

// Validate checks that the payload matches the tag.
func (e Evidence) Validate() error {
	var ok bool
	switch e.Kind {
	case EvidenceAlert:
		ok = e.Alert != nil
	case EvidenceMetric:
		ok = e.Metric != nil
	case EvidenceLog:
		ok = e.Log != nil
	case EvidenceChange:
		ok = e.Change != nil
	default:
		return fmt.Errorf("unknown evidence kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("evidence kind %s has no payload", e.Kind)
	}
	if e.ServiceID() == "" {
		return fmt.Errorf("evidence %s has no service_id", e.Kind)
	}
	if e.Timestamp().IsZero() {
		return fmt.Errorf("evidence %s has no timestamp", e.Kind)
	}
	return nil
}

// ServiceID returns the owning service of the payload.
func (e Evidence) ServiceID() string {
	switch {
	case e.Kind == EvidenceAlert && e.Alert != nil:
		return e.Alert.ServiceID
	case e.Kind == EvidenceMetric && e.Metric != nil:
		return e.Metric.ServiceID
	case e.Kind == EvidenceLog && e.Log != nil:
		return e.Log.ServiceID
	case e.Kind == EvidenceChange && e.Change != nil:
		return e.Change.ServiceID
	}
	return ""
}

// Timestamp returns the observation time of the payload.
func (e Evidence) Timestamp() time.Time {
	switch {
	case e.Kind == EvidenceAlert && e.Alert != nil:
		return e.Alert.Timestamp
	case e.Kind == EvidenceMetric && e.Metric != nil:
		return e.Metric.Timestamp
	case e.Kind == EvidenceLog && e.Log != nil:
		return e.Log.Timestamp
	case e.Kind == EvidenceChange && e.Change != nil:
		return e.Change.Timestamp
	}
	return time.Time{}
}

// Ref returns a stable reference used in causal links.
func (e Evidence) Ref() string {
	ts := e.Timestamp().UTC().Format(time.RFC3339Nano)
	switch {
	case e.Kind == EvidenceAlert && e.Alert != nil:
		return "alert:" + e.Alert.ID
	case e.Kind == EvidenceMetric && e.Metric != nil:
		return "metric:" + e.Metric.Key + "@" + ts
	case e.Kind == EvidenceLog && e.Log != nil:
		return "log:" + e.Log.Key + "@" + ts
	case e.Kind == EvidenceChange && e.Change != nil:
		return "change:" + e.Change.CommitID + ":" + e.Change.File
	}
	return string(e.Kind) + "@" + ts
}

// TimeRange bounds an evidence query; both ends are inclusive.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// KindSet selects evidence kinds for a query. An empty set selects all kinds.
type KindSet map[EvidenceKind]struct{}

// Kinds builds a KindSet.
func Kinds(kinds ...EvidenceKind) KindSet {
	set := make(KindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether k is selected.
func (s KindSet) Has(k EvidenceKind) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[k]
	return ok
}
