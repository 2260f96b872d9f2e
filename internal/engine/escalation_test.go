package engine

import (
	"testing"

	"github.com/miradorstack/mirador-responder/internal/models"
)

func TestEscalate(t *testing.T) {
	cases := []struct {
		tier     models.Tier
		severity models.Severity
		known    bool
		page     bool
		urgency  string
	}{
		{models.TierCore, models.SeverityCritical, true, true, UrgencyCritical},
		{models.TierCore, models.SeverityHigh, true, true, UrgencyCritical},
		{models.TierCore, models.SeverityLow, true, true, UrgencyHigh},
		{models.TierEdge, models.SeverityCritical, true, true, UrgencyCritical},
		{models.TierEdge, models.SeverityHigh, true, true, UrgencyHigh},
		{models.TierEdge, models.SeverityMedium, true, false, UrgencyNormal},
		{models.TierTest, models.SeverityCritical, true, false, UrgencyLow},
		{models.Tier(""), models.SeverityLow, false, true, UrgencyNormal},
	}
	for _, tc := range cases {
		got := Escalate(tc.tier, tc.severity, tc.known)
		if got.Page != tc.page || got.Urgency != tc.urgency {
			t.Fatalf("%s/%s: expected page=%v urgency=%s, got %+v", tc.tier, tc.severity, tc.page, tc.urgency, got)
		}
	}
}
