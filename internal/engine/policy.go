package engine

import "github.com/miradorstack/mirador-responder/internal/models"

// TierPolicy bounds unattended execution for one tier.
type TierPolicy struct {
	ReportOnly    bool
	MaxRisk       models.RiskLevel
	MinConfidence float64
}

// AutonomyPolicy is the per-tier autonomy table. It is monotone: raising
// confidence or lowering risk never makes a verdict more conservative.
// TEST is always report-only and CRITICAL alerts never run unattended,
// whatever the table says.
type AutonomyPolicy struct {
	Tiers map[models.Tier]TierPolicy
}

// DefaultAutonomyPolicy returns the stock table.
func DefaultAutonomyPolicy() AutonomyPolicy {
	return AutonomyPolicy{
		Tiers: map[models.Tier]TierPolicy{
			models.TierCore: {MaxRisk: models.RiskLow, MinConfidence: 0.9},
			models.TierEdge: {MaxRisk: models.RiskLow, MinConfidence: 0.8},
			models.TierTest: {ReportOnly: true},
		},
	}
}

func autonomyLevel(a models.Autonomy) int {
	switch a {
	case models.AutonomyAuto:
		return 2
	case models.AutonomyConfirm:
		return 1
	default:
		return 0
	}
}

// For returns the policy for tier and whether the tier was known. Unknown
// tiers get the CORE policy.
func (p AutonomyPolicy) For(tier models.Tier) (TierPolicy, bool) {
	if tp, ok := p.Tiers[tier]; ok && tier.Valid() {
		return tp, true
	}
	if tp, ok := p.Tiers[models.TierCore]; ok {
		return tp, false
	}
	return DefaultAutonomyPolicy().Tiers[models.TierCore], false
}

// Verdict grades an action of the given risk at the given confidence.
func (p AutonomyPolicy) Verdict(tier models.Tier, risk models.RiskLevel, confidence float64, severity models.Severity) models.Autonomy {
	tp, _ := p.For(tier)
	if tp.ReportOnly || tier == models.TierTest {
		return models.AutonomyReportOnly
	}
	if tp.MaxRisk == "" {
		return models.AutonomyConfirm
	}
	if risk.Rank() > tp.MaxRisk.Rank() || confidence < tp.MinConfidence {
		return models.AutonomyConfirm
	}
	if severity == models.SeverityCritical {
		return models.AutonomyConfirm
	}
	return models.AutonomyAuto
}
