package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// SuccessRater predicts how likely an action is to fix a root cause signature.
type SuccessRater interface {
	SuccessRate(ctx context.Context, signature, actionKind string) (float64, error)
}

// DecisionEngine turns an accepted root cause into ranked actions and an
// autonomy verdict.
type DecisionEngine struct {
	catalog *Catalog
	rates   SuccessRater
	policy  AutonomyPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// NewDecisionEngine constructs a DecisionEngine. A nil catalog uses the defaults.
func NewDecisionEngine(catalog *Catalog, rates SuccessRater, policy AutonomyPolicy, logger *slog.Logger) *DecisionEngine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if policy.Tiers == nil {
		policy = DefaultAutonomyPolicy()
	}
	return &DecisionEngine{
		catalog: catalog,
		rates:   rates,
		policy:  policy,
		logger:  utils.OrDefault(logger),
		now:     time.Now,
	}
}

// Catalog exposes the action catalog.
func (e *DecisionEngine) Catalog() *Catalog { return e.catalog }

// Decide produces the decision for alert given its accepted root cause. svc
// is the registry entry for the alert's service; a zero ID marks it unknown.
func (e *DecisionEngine) Decide(ctx context.Context, alert models.Alert, rc models.RootCause, svc models.Service) (models.Decision, error) {
	known := svc.ID != ""
	tier := svc.Tier
	decision := models.Decision{
		ID:                 uuid.NewString(),
		AlertID:            alert.ID,
		ServiceID:          alert.ServiceID,
		RootCauseSignature: rc.Signature,
		Confidence:         utils.Clamp01(rc.Confidence),
		RankedActions:      []models.RankedAction{},
		CreatedAt:          e.now().UTC(),
		Escalation:         Escalate(tier, alert.Severity, known),
	}

	if _, ok := e.policy.For(tier); !ok {
		e.logger.Warn("service tier missing or unknown, applying CORE policy",
			"service", alert.ServiceID,
			"tier", tier,
			"error", utils.ErrInvalidServiceMetadata,
		)
		decision.Notes = append(decision.Notes, fmt.Sprintf("%s: tier %q for service %q, CORE policy applied",
			utils.ErrInvalidServiceMetadata, tier, alert.ServiceID))
		tier = models.TierCore
	}

	if decision.Confidence == 0 {
		decision.Autonomy = models.AutonomyReportOnly
		decision.Notes = append(decision.Notes, "no correlated root cause")
		return decision, nil
	}

	actions := e.catalog.Actions(rc, alert.Type, alert.ServiceID)
	if len(actions) == 0 {
		decision.Autonomy = models.AutonomyReportOnly
		decision.Notes = append(decision.Notes, fmt.Sprintf("no catalog actions for %s root cause", rc.Kind))
		return decision, nil
	}

	ranked := make([]models.RankedAction, 0, len(actions))
	for _, action := range actions {
		rate, err := e.successRate(ctx, rc.Signature, action.Kind)
		if err != nil {
			return models.Decision{}, err
		}
		ranked = append(ranked, models.RankedAction{Action: action, PredictedSuccessRate: rate})
	}
	RankActions(ranked)
	decision.RankedActions = ranked

	top := ranked[0].Action
	decision.Autonomy = e.policy.Verdict(tier, top.RiskLevel, decision.Confidence, alert.Severity)
	return decision, nil
}

// Regrade applies the autonomy policy to d as if it had been made for an
// alert of severity. The result is never less conservative than d.Autonomy.
func (e *DecisionEngine) Regrade(d models.Decision, tier models.Tier, severity models.Severity) models.Autonomy {
	top, ok := d.Top()
	if !ok || d.Autonomy == models.AutonomyReportOnly {
		return d.Autonomy
	}
	if _, known := e.policy.For(tier); !known {
		tier = models.TierCore
	}
	v := e.policy.Verdict(tier, top.RiskLevel, d.Confidence, severity)
	if autonomyLevel(v) < autonomyLevel(d.Autonomy) {
		return v
	}
	return d.Autonomy
}

func (e *DecisionEngine) successRate(ctx context.Context, signature, kind string) (float64, error) {
	if e.rates == nil {
		return 0, utils.Unavailable("decision.rank", fmt.Errorf("knowledge store not configured"))
	}
	rate, err := e.rates.SuccessRate(ctx, signature, kind)
	if err != nil {
		return 0, err
	}
	return utils.Clamp01(rate), nil
}

// RankActions orders by predicted success rate desc, then risk asc, downtime
// asc, kind asc.
func RankActions(ranked []models.RankedAction) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.PredictedSuccessRate != b.PredictedSuccessRate {
			return a.PredictedSuccessRate > b.PredictedSuccessRate
		}
		if ra, rb := a.Action.RiskLevel.Rank(), b.Action.RiskLevel.Rank(); ra != rb {
			return ra < rb
		}
		if da, db := a.Action.EstimatedImpact.DowntimeSeconds, b.Action.EstimatedImpact.DowntimeSeconds; da != db {
			return da < db
		}
		return a.Action.Kind < b.Action.Kind
	})
}
