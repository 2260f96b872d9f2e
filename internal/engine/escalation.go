package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Urgency levels attached to escalations.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyNormal   = "normal"
	UrgencyLow      = "low"
)

// Escalate decides whether a human is paged for an alert on a service of the
// given tier. known is false when the service is not in the registry.
func Escalate(tier models.Tier, severity models.Severity, known bool) models.Escalation {
	if !known {
		return models.Escalation{Page: true, Urgency: UrgencyNormal, Reason: "unknown service"}
	}
	severe := severity.Rank() >= models.SeverityHigh.Rank()
	switch tier {
	case models.TierEdge:
		if !severe {
			return models.Escalation{Page: false, Urgency: UrgencyNormal, Reason: "edge service below high severity"}
		}
		urgency := UrgencyHigh
		if severity == models.SeverityCritical {
			urgency = UrgencyCritical
		}
		return models.Escalation{Page: true, Urgency: urgency, Reason: fmt.Sprintf("edge service at %s severity", severity)}
	case models.TierTest:
		return models.Escalation{Page: false, Urgency: UrgencyLow, Reason: "test service"}
	default:
		urgency := UrgencyHigh
		if severe {
			urgency = UrgencyCritical
		}
		return models.Escalation{Page: true, Urgency: urgency, Reason: "core service"}
	}
}
