package models

import "strings"

// Severity captures alert and log impact levels.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity accepts the canonical names plus common log-level spellings.
func ParseSeverity(value string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low", "info", "debug", "p3":
		return SeverityLow, true
	case "medium", "warn", "warning", "p2":
		return SeverityMedium, true
	case "high", "error", "err", "p1":
		return SeverityHigh, true
	case "critical", "fatal", "panic", "p0":
		return SeverityCritical, true
	default:
		return "", false
	}
}

// Tier classifies services for urgency and automation conservatism.
type Tier string

const (
	TierCore Tier = "CORE"
	TierEdge Tier = "EDGE"
	TierTest Tier = "TEST"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCore, TierEdge, TierTest:
		return true
	default:
		return false
	}
}

// ParseTier normalises a configured tier name.
func ParseTier(value string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(value)))
	return t, t.Valid()
}

// RiskLevel grades how dangerous an action is to run.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank orders risk levels; unknown values rank above HIGH so they never pass a ceiling.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 4
	}
}

// ParseRiskLevel normalises a configured risk name.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(value)))
	return r, r.Rank() <= 3
}

// Autonomy is the verdict on whether a decision may execute unattended.
type Autonomy string

const (
	AutonomyAuto       Autonomy = "AUTO"
	AutonomyConfirm    Autonomy = "CONFIRM"
	AutonomyReportOnly Autonomy = "REPORT_ONLY"
)
