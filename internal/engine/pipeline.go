package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/mirador-responder/internal/metrics"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// Executor runs a remediation action on behalf of a decision.
type Executor interface {
	Execute(ctx context.Context, decision models.Decision, action models.Action) (models.ExecutionResult, error)
}

// DecisionSink receives every analysis once its decision is final or changes.
type DecisionSink interface {
	PublishAnalysis(ctx context.Context, analysis models.Analysis) error
}

// FeedbackRecorder folds outcomes into the Knowledge Store.
type FeedbackRecorder interface {
	Record(ctx context.Context, outcome models.Outcome) error
	RecordExecution(ctx context.Context, decision models.Decision, action models.Action, result models.ExecutionResult) error
}

// Suppressor flags repeated alerts of the same shape inside a cooldown.
type Suppressor interface {
	Check(ctx context.Context, alert models.Alert) (string, bool)
	Mark(ctx context.Context, alert models.Alert)
}

// PipelineOptions wires a Pipeline. Correlator and Decider are required.
type PipelineOptions struct {
	Correlator  *CorrelationEngine
	Decider     *DecisionEngine
	Feedback    FeedbackRecorder
	Executor    Executor
	Sinks       []DecisionSink
	Suppressor  Suppressor
	Services    map[string]models.Service
	AutoExecute bool
	// History bounds how many analyses are kept for resolve and lookup.
	History     int
	SinkTimeout time.Duration
	Logger      *slog.Logger
}

type flight struct {
	alertID string
	cancel  context.CancelCauseFunc
	done    chan struct{}
	result  models.Analysis
	err     error
}

// Pipeline runs correlate, decide and act for incoming alerts. At most one
// analysis per service is in flight; a newer alert supersedes the older one.
type Pipeline struct {
	logger      *slog.Logger
	correlator  *CorrelationEngine
	decider     *DecisionEngine
	feedback    FeedbackRecorder
	executor    Executor
	sinks       []DecisionSink
	suppressor  Suppressor
	services    map[string]models.Service
	topology    *Topology
	autoExecute bool
	history     int
	sinkTimeout time.Duration
	now         func() time.Time

	mu         sync.Mutex
	inflight   map[string]*flight
	claims     map[string]string
	analyses   map[string]*models.Analysis
	byDecision map[string]string
	order      []string
}

// NewPipeline constructs a new alert pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.History <= 0 {
		opts.History = 10000
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	services := make(map[string]models.Service, len(opts.Services))
	for id, svc := range opts.Services {
		services[id] = svc
	}
	return &Pipeline{
		logger:      utils.OrDefault(opts.Logger),
		correlator:  opts.Correlator,
		decider:     opts.Decider,
		feedback:    opts.Feedback,
		executor:    opts.Executor,
		sinks:       opts.Sinks,
		suppressor:  opts.Suppressor,
		services:    services,
		topology:    NewTopology(services),
		autoExecute: opts.AutoExecute,
		history:     opts.History,
		sinkTimeout: opts.SinkTimeout,
		now:         time.Now,
		inflight:    make(map[string]*flight),
		claims:      make(map[string]string),
		analyses:    make(map[string]*models.Analysis),
		byDecision:  make(map[string]string),
	}
}

// Services returns the registered services sorted by ID.
func (p *Pipeline) Services() []models.Service {
	out := make([]models.Service, 0, len(p.services))
	for _, svc := range p.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CausalChain returns serviceID and the services it depends on, directly or
// transitively.
func (p *Pipeline) CausalChain(serviceID string) []string {
	return p.topology.CausalChain(serviceID)
}

// Catalog exposes the decision engine's action catalog.
func (p *Pipeline) Catalog() *Catalog {
	if p.decider == nil {
		return DefaultCatalog()
	}
	return p.decider.Catalog()
}

// Analysis returns the stored analysis for alertID.
func (p *Pipeline) Analysis(alertID string) (models.Analysis, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.analyses[alertID]
	if !ok {
		return models.Analysis{}, false
	}
	return cloneAnalysis(*a), true
}

// Analyze correlates alert, decides on remediation and, for AUTO verdicts,
// executes the top action. Re-submitting an alert returns its existing analysis.
func (p *Pipeline) Analyze(ctx context.Context, alert models.Alert) (models.Analysis, error) {
	const op = "pipeline.analyze"
	start := p.now()

	alert, err := normaliseAlert(alert)
	if err != nil {
		metrics.ObserveAnalysis(p.now().Sub(start), metrics.OutcomeError)
		return models.Analysis{}, err
	}
	if p.correlator == nil || p.decider == nil {
		return models.Analysis{}, utils.NewAppError(op, "pipeline not configured", utils.ErrDataUnavailable)
	}

	if existing, ok := p.Analysis(alert.ID); ok {
		return existing, nil
	}

	if p.suppressor != nil {
		if firstID, dup := p.suppressor.Check(ctx, alert); dup {
			first, ok := p.Analysis(firstID)
			switch {
			case !ok:
			case alert.Severity.Rank() > first.Alert.Severity.Rank():
				p.logger.Info("duplicate alert escalated severity, analysing afresh",
					"alert_id", alert.ID,
					"first_alert_id", firstID,
					"severity", alert.Severity,
					"first_severity", first.Alert.Severity,
				)
			default:
				p.logger.Info("alert suppressed as duplicate",
					"alert_id", alert.ID,
					"first_alert_id", firstID,
					"service", alert.ServiceID,
					"type", alert.Type,
				)
				metrics.ObserveAnalysis(p.now().Sub(start), metrics.OutcomeDuplicate)
				first.Decision.Autonomy = p.decider.Regrade(first.Decision, p.services[alert.ServiceID].Tier, alert.Severity)
				first.Alert = alert
				first.Duplicate = true
				first.DuplicateOf = firstID
				return first, nil
			}
		}
	}

	fctx, f, waiting := p.begin(ctx, alert)
	if waiting {
		select {
		case <-f.done:
			return cloneAnalysis(f.result), f.err
		case <-ctx.Done():
			return models.Analysis{}, ctx.Err()
		}
	}

	analysis, err := p.run(fctx, alert)
	if err == nil {
		err = p.commit(fctx, f, &analysis)
	}
	p.finish(alert.ServiceID, f, analysis, err)

	switch {
	case errors.Is(err, utils.ErrSuperseded):
		metrics.ObserveAnalysis(p.now().Sub(start), metrics.OutcomeSuperseded)
		return models.Analysis{}, err
	case err != nil:
		metrics.ObserveAnalysis(p.now().Sub(start), metrics.OutcomeError)
		return models.Analysis{}, err
	}

	if p.suppressor != nil {
		p.suppressor.Mark(ctx, alert)
	}
	metrics.ObserveDecision(string(analysis.Decision.Autonomy))

	if analysis.Decision.Autonomy == models.AutonomyAuto && p.autoExecute && p.executor != nil {
		if top, ok := analysis.Decision.Top(); ok {
			if _, done, err := p.claim("pipeline.auto", alert.ID, top.Kind); err != nil || done {
				p.logger.Info("automatic execution skipped, decision already being resolved", "alert_id", alert.ID, "error", err)
			} else {
				updated, execErr := p.execute(ctx, alert.ID, top, "auto")
				p.release(alert.ID)
				if execErr != nil {
					p.logger.Warn("automatic execution failed", "alert_id", alert.ID, "action", top.Kind, "error", execErr)
				}
				if updated.Alert.ID != "" {
					analysis = updated
				}
			}
		}
	}

	metrics.ObserveAnalysis(p.now().Sub(start), metrics.OutcomeSuccess)
	p.publish(ctx, analysis)
	return analysis, nil
}

// run does the read-only part of an analysis.
func (p *Pipeline) run(ctx context.Context, alert models.Alert) (models.Analysis, error) {
	svc, known := p.services[alert.ServiceID]
	if !known {
		p.logger.Warn("alert for unregistered service", "alert_id", alert.ID, "service", alert.ServiceID)
	}

	causes, err := p.correlator.Analyze(ctx, alert, svc.Tier)
	if err != nil {
		return models.Analysis{}, supersededOr(ctx, err)
	}
	accepted := causes[0]

	decision, err := p.decider.Decide(ctx, alert, accepted, svc)
	if err != nil {
		return models.Analysis{}, supersededOr(ctx, err)
	}
	if !known {
		svc = models.Service{ID: alert.ServiceID, Name: alert.ServiceID}
	}

	p.logger.Info("alert analysed",
		"alert_id", alert.ID,
		"service", alert.ServiceID,
		"root_cause", accepted.Identity,
		"confidence", accepted.Confidence,
		"autonomy", decision.Autonomy,
		"actions", len(decision.RankedActions),
	)
	return models.Analysis{
		Alert:            alert,
		Service:          svc,
		RootCauses:       causes,
		AffectedServices: p.topology.Affected(alert.ServiceID),
		Decision:         decision,
	}, nil
}

// begin registers alert as the in-flight analysis for its service, cancelling
// any older one. waiting is true when the same alert is already running.
func (p *Pipeline) begin(ctx context.Context, alert models.Alert) (context.Context, *flight, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.inflight[alert.ServiceID]; ok {
		if prev.alertID == alert.ID {
			return nil, prev, true
		}
		p.logger.Info("superseding in-flight analysis",
			"service", alert.ServiceID,
			"previous_alert_id", prev.alertID,
			"alert_id", alert.ID,
		)
		prev.cancel(utils.ErrSuperseded)
	}

	fctx, cancel := context.WithCancelCause(ctx)
	f := &flight{alertID: alert.ID, cancel: cancel, done: make(chan struct{})}
	p.inflight[alert.ServiceID] = f
	return fctx, f, false
}

// commit stores the decision unless the analysis was superseded meanwhile.
func (p *Pipeline) commit(ctx context.Context, f *flight, analysis *models.Analysis) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errors.Is(context.Cause(ctx), utils.ErrSuperseded) {
		return superseded(f.alertID)
	}
	if existing, ok := p.analyses[analysis.Alert.ID]; ok {
		*analysis = cloneAnalysis(*existing)
		return nil
	}
	stored := cloneAnalysis(*analysis)
	p.analyses[analysis.Alert.ID] = &stored
	p.byDecision[analysis.Decision.ID] = analysis.Alert.ID
	p.order = append(p.order, analysis.Alert.ID)
	for len(p.order) > p.history {
		oldest := p.order[0]
		p.order = p.order[1:]
		if a, ok := p.analyses[oldest]; ok {
			delete(p.byDecision, a.Decision.ID)
		}
		delete(p.analyses, oldest)
	}
	return nil
}

func (p *Pipeline) finish(serviceID string, f *flight, analysis models.Analysis, err error) {
	p.mu.Lock()
	if cur, ok := p.inflight[serviceID]; ok && cur == f {
		delete(p.inflight, serviceID)
	}
	f.result = analysis
	f.err = err
	p.mu.Unlock()
	f.cancel(nil)
	close(f.done)
}

// Resolve records the action chosen for alertID and hands it to the executor
// when one is configured. kind must be one of the decision's ranked actions.
func (p *Pipeline) Resolve(ctx context.Context, alertID, kind, resolvedBy string) (models.Analysis, error) {
	const op = "pipeline.resolve"
	analysis, ok := p.Analysis(alertID)
	if !ok {
		return models.Analysis{}, utils.NewAppError(op, fmt.Sprintf("no decision for alert %q", alertID), utils.ErrNotFound)
	}
	d := analysis.Decision
	if len(d.RankedActions) == 0 {
		return models.Analysis{}, utils.Invalid(op, "decision %s has no actions to resolve", d.ID)
	}
	action, ok := d.Find(kind)
	if !ok {
		return models.Analysis{}, utils.Invalid(op, "action %q is not ranked for decision %s", kind, d.ID)
	}
	if strings.TrimSpace(resolvedBy) == "" {
		resolvedBy = "operator"
	}

	current, done, err := p.claim(op, alertID, kind)
	if err != nil {
		return models.Analysis{}, err
	}
	if done {
		return current, nil
	}
	defer p.release(alertID)

	if p.executor == nil {
		updated, err := p.markResolved(alertID, action, resolvedBy, nil)
		if err != nil {
			return models.Analysis{}, err
		}
		p.publish(ctx, updated)
		return updated, nil
	}

	updated, err := p.execute(ctx, alertID, action, resolvedBy)
	if updated.Alert.ID != "" {
		p.publish(ctx, updated)
	}
	return updated, err
}

// claim reserves alertID's decision for resolution with kind. done is true
// when the decision is already resolved with kind, in which case the stored
// analysis is returned. Any other resolved or in-progress decision is refused.
func (p *Pipeline) claim(op, alertID, kind string) (models.Analysis, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.analyses[alertID]
	if !ok {
		return models.Analysis{}, false, utils.NewAppError(op, fmt.Sprintf("no decision for alert %q", alertID), utils.ErrNotFound)
	}
	d := a.Decision
	if d.Resolved() {
		if d.ChosenAction.Kind == kind {
			return cloneAnalysis(*a), true, nil
		}
		return models.Analysis{}, false, utils.Invalid(op, "decision %s already resolved with %q", d.ID, d.ChosenAction.Kind)
	}
	if held, busy := p.claims[alertID]; busy {
		return models.Analysis{}, false, utils.Invalid(op, "decision %s is already being resolved with %q", d.ID, held)
	}
	p.claims[alertID] = kind
	return models.Analysis{}, false, nil
}

func (p *Pipeline) release(alertID string) {
	p.mu.Lock()
	delete(p.claims, alertID)
	p.mu.Unlock()
}

// execute runs action, stores the result on the decision and records the
// outcome. Execution errors are recorded as failed outcomes.
func (p *Pipeline) execute(ctx context.Context, alertID string, action models.Action, resolvedBy string) (models.Analysis, error) {
	const op = "pipeline.execute"
	current, ok := p.Analysis(alertID)
	if !ok {
		return models.Analysis{}, utils.NewAppError(op, fmt.Sprintf("no decision for alert %q", alertID), utils.ErrNotFound)
	}

	result, execErr := p.executor.Execute(ctx, current.Decision, action)
	if execErr != nil {
		result = models.ExecutionResult{Succeeded: false, ExecutedAt: p.now().UTC(), Message: execErr.Error()}
	}
	if result.ExecutedAt.IsZero() {
		result.ExecutedAt = p.now().UTC()
	}
	metrics.ObserveExecution(action.Kind, result.Succeeded)

	updated, err := p.markResolved(alertID, action, resolvedBy, &result)
	if err != nil {
		return models.Analysis{}, err
	}

	var recordErr error
	if p.feedback != nil {
		if recordErr = p.feedback.RecordExecution(ctx, updated.Decision, action, result); recordErr != nil {
			p.logger.Error("recording execution outcome failed", "alert_id", alertID, "action", action.Kind, "error", recordErr)
			metrics.ObserveKnowledgeError("record_execution")
			updated = p.annotate(alertID, fmt.Sprintf("outcome not recorded: %v", recordErr), updated)
		}
	}

	if execErr != nil {
		return updated, utils.NewAppError(op, fmt.Sprintf("action %s for alert %s", action.Kind, alertID), errors.Join(utils.ErrExecutionFailure, execErr, recordErr))
	}
	if !result.Succeeded {
		p.logger.Info("action reported failure", "alert_id", alertID, "action", action.Kind, "message", result.Message)
	}
	if recordErr != nil {
		return updated, utils.NewAppError(op, fmt.Sprintf("outcome of %s for alert %s not recorded", action.Kind, alertID), recordErr)
	}
	return updated, nil
}

// annotate appends note to the stored decision. fallback is returned when the
// analysis has been evicted meanwhile.
func (p *Pipeline) annotate(alertID, note string, fallback models.Analysis) models.Analysis {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.analyses[alertID]
	if !ok {
		fallback.Decision.Notes = append(fallback.Decision.Notes, note)
		return fallback
	}
	a.Decision.Notes = append(a.Decision.Notes, note)
	return cloneAnalysis(*a)
}

func (p *Pipeline) markResolved(alertID string, action models.Action, resolvedBy string, result *models.ExecutionResult) (models.Analysis, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.analyses[alertID]
	if !ok {
		return models.Analysis{}, utils.NewAppError("pipeline.resolve", fmt.Sprintf("no decision for alert %q", alertID), utils.ErrNotFound)
	}
	chosen := action
	resolvedAt := p.now().UTC()
	a.Decision.ChosenAction = &chosen
	a.Decision.ResolvedAt = &resolvedAt
	a.Decision.ResolvedBy = resolvedBy
	if result != nil {
		r := *result
		a.Execution = &r
		if !r.Succeeded {
			a.Decision.Notes = append(a.Decision.Notes, fmt.Sprintf("%s: %s", utils.ErrExecutionFailure, r.Message))
		}
	}
	return cloneAnalysis(*a), nil
}

// SubmitFeedback records an outcome reported by an operator or orchestrator.
// A known decision ID fills in a missing signature.
func (p *Pipeline) SubmitFeedback(ctx context.Context, outcome models.Outcome) error {
	const op = "pipeline.feedback"
	if p.feedback == nil {
		return utils.NewAppError(op, "feedback sink not configured", utils.ErrDataUnavailable)
	}
	if outcome.RootCauseSignature == "" && outcome.DecisionID != "" {
		p.mu.Lock()
		alertID, ok := p.byDecision[outcome.DecisionID]
		var sig string
		if ok {
			sig = p.analyses[alertID].Decision.RootCauseSignature
		}
		p.mu.Unlock()
		if !ok {
			return utils.NewAppError(op, fmt.Sprintf("unknown decision %q", outcome.DecisionID), utils.ErrNotFound)
		}
		outcome.RootCauseSignature = sig
	}
	if outcome.ReportedAt.IsZero() {
		outcome.ReportedAt = p.now().UTC()
	}
	return p.feedback.Record(ctx, outcome)
}

func (p *Pipeline) publish(ctx context.Context, analysis models.Analysis) {
	if len(p.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sinkTimeout)
	defer cancel()
	for _, sink := range p.sinks {
		if err := sink.PublishAnalysis(ctx, analysis); err != nil {
			p.logger.Warn("decision sink failed",
				"alert_id", analysis.Alert.ID,
				"sink", fmt.Sprintf("%T", sink),
				"error", err,
			)
		}
	}
}

func normaliseAlert(alert models.Alert) (models.Alert, error) {
	const op = "pipeline.analyze"
	alert.ID = strings.TrimSpace(alert.ID)
	alert.ServiceID = strings.TrimSpace(alert.ServiceID)
	if alert.ID == "" {
		return alert, utils.Invalid(op, "alert id is required")
	}
	if alert.ServiceID == "" {
		return alert, utils.Invalid(op, "alert %s has no service_id", alert.ID)
	}
	if alert.Timestamp.IsZero() {
		return alert, utils.Invalid(op, "alert %s has no timestamp", alert.ID)
	}
	sev, ok := models.ParseSeverity(string(alert.Severity))
	if !ok {
		return alert, utils.Invalid(op, "alert %s has unknown severity %q", alert.ID, alert.Severity)
	}
	alert.Severity = sev
	return alert, nil
}

func supersededOr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), utils.ErrSuperseded) {
		return superseded("")
	}
	return err
}

func superseded(alertID string) error {
	msg := "superseded by a newer alert"
	if alertID != "" {
		msg = fmt.Sprintf("alert %s superseded by a newer alert", alertID)
	}
	return utils.NewAppError("pipeline.analyze", msg, utils.ErrSuperseded)
}

func cloneAnalysis(a models.Analysis) models.Analysis {
	out := a
	out.RootCauses = append([]models.RootCause(nil), a.RootCauses...)
	out.AffectedServices = append([]string(nil), a.AffectedServices...)
	out.Decision.RankedActions = append([]models.RankedAction{}, a.Decision.RankedActions...)
	out.Decision.Notes = append([]string(nil), a.Decision.Notes...)
	if a.Decision.ChosenAction != nil {
		chosen := *a.Decision.ChosenAction
		out.Decision.ChosenAction = &chosen
	}
	if a.Decision.ResolvedAt != nil {
		at := *a.Decision.ResolvedAt
		out.Decision.ResolvedAt = &at
	}
	if a.Execution != nil {
		exec := *a.Execution
		out.Execution = &exec
	}
	return out
}
