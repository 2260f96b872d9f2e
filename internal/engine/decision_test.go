package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-responder/internal/knowledge"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

type fixedRates map[string]float64

func (f fixedRates) SuccessRate(ctx context.Context, signature, actionKind string) (float64, error) {
	if rate, ok := f[actionKind]; ok {
		return rate, nil
	}
	return 0.5, nil
}

type brokenRates struct{}

func (brokenRates) SuccessRate(ctx context.Context, signature, actionKind string) (float64, error) {
	return 0, utils.Unavailable("knowledge.success_rate", errors.New("db down"))
}

func changeCause(confidence float64) models.RootCause {
	return models.RootCause{
		AlertID:    "alert-1",
		ServiceID:  "checkout",
		Signature:  Signature("checkout", models.EvidenceChange, "pay.go"),
		Kind:       models.LinkChangeProximity,
		Location:   "pay.go",
		Confidence: confidence,
	}
}

func coreService() models.Service {
	return models.Service{ID: "checkout", Name: "checkout", Tier: models.TierCore}
}

func TestDecideZeroConfidenceIsReportOnly(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{}, DefaultAutonomyPolicy(), nil)
	unknown := unknownRootCause(testAlert(), 30*time.Minute)

	d, err := engine.Decide(context.Background(), testAlert(), unknown, coreService())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Autonomy != models.AutonomyReportOnly || len(d.RankedActions) != 0 {
		t.Fatalf("expected empty report-only decision, got %+v", d)
	}
	if d.ChosenAction != nil {
		t.Fatalf("chosen action must stay unset")
	}
}

func TestDecideCoreChangeScenario(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{}, DefaultAutonomyPolicy(), nil)

	d, err := engine.Decide(context.Background(), testAlert(), changeCause(1-5.0/30.0), coreService())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Autonomy != models.AutonomyConfirm {
		t.Fatalf("expected CONFIRM on core at 0.83, got %s", d.Autonomy)
	}
	top, ok := d.Top()
	if !ok || top.Kind != "rollback" {
		t.Fatalf("expected rollback first, got %+v", d.RankedActions)
	}
	if d.RankedActions[0].PredictedSuccessRate != 0.5 || d.RankedActions[1].Action.Kind != "hotfix-deploy" {
		t.Fatalf("unexpected ranking %+v", d.RankedActions)
	}
	if d.ID == "" || d.RootCauseSignature == "" || d.ChosenAction != nil {
		t.Fatalf("unexpected decision identity %+v", d)
	}
	if !d.Escalation.Page {
		t.Fatalf("core services page")
	}
}

func TestDecideEdgeLearnedScenario(t *testing.T) {
	store := knowledge.NewMemoryStore()
	rc := changeCause(0.85)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := store.RecordOutcome(ctx, rc.Signature, "rollback", i < 9); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	rates := knowledge.NewEstimator(store, knowledge.DefaultPrior, time.Second, nil)
	engine := NewDecisionEngine(nil, rates, DefaultAutonomyPolicy(), nil)
	edge := models.Service{ID: "checkout", Tier: models.TierEdge}

	d, err := engine.Decide(ctx, testAlert(), rc, edge)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.RankedActions[0].Action.Kind != "rollback" || d.RankedActions[0].PredictedSuccessRate != 0.9 {
		t.Fatalf("expected learned rollback rate 0.9 first, got %+v", d.RankedActions)
	}
	if d.Autonomy != models.AutonomyAuto {
		t.Fatalf("expected AUTO on edge, got %s", d.Autonomy)
	}
}

func TestDecideRanksByLearnedRate(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{"hotfix-deploy": 0.7, "rollback": 0.2}, DefaultAutonomyPolicy(), nil)

	d, err := engine.Decide(context.Background(), testAlert(), changeCause(0.95), coreService())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.RankedActions[0].Action.Kind != "hotfix-deploy" {
		t.Fatalf("expected higher rate first, got %+v", d.RankedActions)
	}
	if d.Autonomy != models.AutonomyConfirm {
		t.Fatalf("medium risk top action needs confirmation, got %s", d.Autonomy)
	}
}

func TestDecideTestTierReportOnly(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{}, DefaultAutonomyPolicy(), nil)
	svc := models.Service{ID: "checkout", Tier: models.TierTest}

	d, err := engine.Decide(context.Background(), testAlert(), changeCause(0.99), svc)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Autonomy != models.AutonomyReportOnly || len(d.RankedActions) == 0 {
		t.Fatalf("test tier reports actions without automation, got %+v", d)
	}
	if d.Escalation.Page {
		t.Fatalf("test tier never pages")
	}
}

func TestDecideUnknownTierUsesCorePolicy(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{}, DefaultAutonomyPolicy(), nil)
	svc := models.Service{ID: "checkout", Tier: models.Tier("LAB")}

	d, err := engine.Decide(context.Background(), testAlert(), changeCause(0.85), svc)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Autonomy != models.AutonomyConfirm {
		t.Fatalf("expected CORE verdict, got %s", d.Autonomy)
	}
	if len(d.Notes) == 0 || !strings.Contains(d.Notes[0], utils.ErrInvalidServiceMetadata.Error()) {
		t.Fatalf("expected metadata note, got %v", d.Notes)
	}
}

func TestDecideKnowledgeFailure(t *testing.T) {
	engine := NewDecisionEngine(nil, brokenRates{}, DefaultAutonomyPolicy(), nil)

	_, err := engine.Decide(context.Background(), testAlert(), changeCause(0.9), coreService())
	if !errors.Is(err, utils.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestRankActionsTieBreaks(t *testing.T) {
	ranked := []models.RankedAction{
		{Action: models.Action{Kind: "b", RiskLevel: models.RiskLow, EstimatedImpact: models.Impact{DowntimeSeconds: 10}}, PredictedSuccessRate: 0.5},
		{Action: models.Action{Kind: "a", RiskLevel: models.RiskLow, EstimatedImpact: models.Impact{DowntimeSeconds: 10}}, PredictedSuccessRate: 0.5},
		{Action: models.Action{Kind: "c", RiskLevel: models.RiskLow, EstimatedImpact: models.Impact{DowntimeSeconds: 0}}, PredictedSuccessRate: 0.5},
		{Action: models.Action{Kind: "d", RiskLevel: models.RiskMedium}, PredictedSuccessRate: 0.5},
		{Action: models.Action{Kind: "e", RiskLevel: models.RiskHigh}, PredictedSuccessRate: 0.6},
	}
	RankActions(ranked)
	want := []string{"e", "c", "a", "b", "d"}
	for i, k := range want {
		if ranked[i].Action.Kind != k {
			t.Fatalf("position %d: expected %s, got %s", i, k, ranked[i].Action.Kind)
		}
	}
}

func TestRegradeNeverLoosens(t *testing.T) {
	engine := NewDecisionEngine(nil, fixedRates{}, DefaultAutonomyPolicy(), nil)
	d, err := engine.Decide(context.Background(), testAlert(), changeCause(0.85), models.Service{ID: "checkout", Tier: models.TierEdge})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Autonomy != models.AutonomyAuto {
		t.Fatalf("expected AUTO baseline, got %s", d.Autonomy)
	}
	if got := engine.Regrade(d, models.TierEdge, models.SeverityCritical); got != models.AutonomyConfirm {
		t.Fatalf("critical regrade: expected CONFIRM, got %s", got)
	}
	if got := engine.Regrade(d, models.TierEdge, models.SeverityLow); got != models.AutonomyAuto {
		t.Fatalf("low regrade: expected AUTO, got %s", got)
	}

	d.Autonomy = models.AutonomyConfirm
	if got := engine.Regrade(d, models.TierEdge, models.SeverityLow); got != models.AutonomyConfirm {
		t.Fatalf("regrade must not loosen CONFIRM, got %s", got)
	}
}
