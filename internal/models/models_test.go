package models

import (
	"testing"
	"time"
)

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("expected %s < %s", order[i-1], order[i])
		}
	}
	if Severity("bogus").Valid() {
		t.Fatalf("unknown severity should be invalid")
	}
	if s, ok := ParseSeverity("error"); !ok || s != SeverityHigh {
		t.Fatalf("expected error to parse as HIGH, got %s", s)
	}
}

func TestEvidenceValidate(t *testing.T) {
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ok := MetricEvidence(MetricSample{ServiceID: "svc", Timestamp: ts, Key: "cpu", Value: 1})
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := Evidence{Kind: EvidenceLog}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected missing payload error")
	}
	mismatched := Evidence{Kind: EvidenceChange, Metric: ok.Metric}
	if err := mismatched.Validate(); err == nil {
		t.Fatalf("expected kind/payload mismatch error")
	}
	if ok.Ref() != "metric:cpu@2026-01-01T10:00:00Z" {
		t.Fatalf("unexpected ref %q", ok.Ref())
	}
}

func TestSuccessRatePrior(t *testing.T) {
	rec := KnowledgeRecord{}
	if rec.SuccessRate(0.5) != 0.5 {
		t.Fatalf("expected prior for empty record")
	}
	rec.Attempts, rec.Successes = 4, 3
	if rec.SuccessRate(0.5) != 0.75 {
		t.Fatalf("expected 0.75, got %f", rec.SuccessRate(0.5))
	}
}

func TestLineRangeOverlap(t *testing.T) {
	if !(LineRange{Start: 10, End: 20}).Overlaps(LineRange{Start: 15, End: 30}) {
		t.Fatalf("expected overlap")
	}
	if (LineRange{Start: 10, End: 20}).Overlaps(LineRange{Start: 21, End: 30}) {
		t.Fatalf("expected no overlap")
	}
	if !(LineRange{}).Overlaps(LineRange{Start: 5, End: 6}) {
		t.Fatalf("unknown range should overlap")
	}
}
