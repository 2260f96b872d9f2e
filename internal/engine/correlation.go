package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/miradorstack/mirador-responder/internal/evidence"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// CorrelationConfig tunes the link rules and look-back windows.
type CorrelationConfig struct {
	Lookback         map[models.Tier]time.Duration
	DefaultLookback  time.Duration
	MetricWindow     time.Duration
	LogWindow        time.Duration
	TemporalWeight   float64
	MetricSaturation float64
	HotPathBoost     float64
	TopK             int
	QueryTimeout     time.Duration
}

// DefaultCorrelationConfig returns the stock tuning.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		Lookback: map[models.Tier]time.Duration{
			models.TierCore: 30 * time.Minute,
			models.TierEdge: 30 * time.Minute,
			models.TierTest: 30 * time.Minute,
		},
		DefaultLookback:  30 * time.Minute,
		MetricWindow:     5 * time.Minute,
		LogWindow:        5 * time.Minute,
		TemporalWeight:   0.2,
		MetricSaturation: 4,
		HotPathBoost:     0.5,
		TopK:             3,
		QueryTimeout:     5 * time.Second,
	}
}

func (c CorrelationConfig) lookback(tier models.Tier) time.Duration {
	if d, ok := c.Lookback[tier]; ok && d > 0 {
		return d
	}
	if d, ok := c.Lookback[models.TierCore]; ok && d > 0 {
		return d
	}
	if c.DefaultLookback > 0 {
		return c.DefaultLookback
	}
	return 30 * time.Minute
}

// CorrelationEngine links evidence to alerts with deterministic rules and
// scores candidates with a probabilistic OR.
type CorrelationEngine struct {
	store    evidence.Store
	hotPaths *HotPathTable
	cfg      CorrelationConfig
	logger   *slog.Logger
}

// NewCorrelationEngine constructs a CorrelationEngine. Zero config fields take defaults.
func NewCorrelationEngine(store evidence.Store, hotPaths *HotPathTable, cfg CorrelationConfig, logger *slog.Logger) *CorrelationEngine {
	def := DefaultCorrelationConfig()
	if cfg.MetricWindow <= 0 {
		cfg.MetricWindow = def.MetricWindow
	}
	if cfg.LogWindow <= 0 {
		cfg.LogWindow = def.LogWindow
	}
	if cfg.MetricSaturation <= 0 {
		cfg.MetricSaturation = def.MetricSaturation
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.Lookback == nil && cfg.DefaultLookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	cfg.TemporalWeight = utils.Clamp01(cfg.TemporalWeight)
	cfg.HotPathBoost = utils.Clamp01(cfg.HotPathBoost)
	if hotPaths == nil {
		hotPaths = NewHotPathTable()
	}
	return &CorrelationEngine{store: store, hotPaths: hotPaths, cfg: cfg, logger: utils.OrDefault(logger)}
}

// Lookback returns the evidence window used for tier.
func (e *CorrelationEngine) Lookback(tier models.Tier) time.Duration {
	return e.cfg.lookback(tier)
}

// candidate accumulates the links for one cause identity.
type candidate struct {
	identity     string
	linkType     models.LinkType
	evidenceKind models.EvidenceKind
	location     string
	links        []models.CausalLink
	summary      string
	hints        []string
}

func (c *candidate) confidence() float64 {
	remaining := 1.0
	for _, l := range c.links {
		remaining *= 1 - l.Weight
	}
	return utils.Clamp01(1 - remaining)
}

// Analyze returns up to TopK root cause candidates for alert, best first. When
// nothing in the window correlates it returns a single UNKNOWN placeholder
// with confidence 0. Store failures and timeouts surface as ErrDataUnavailable.
func (e *CorrelationEngine) Analyze(ctx context.Context, alert models.Alert, tier models.Tier) ([]models.RootCause, error) {
	const op = "correlation.analyze"
	if strings.TrimSpace(alert.ServiceID) == "" {
		return nil, utils.Invalid(op, "alert %q has no service_id", alert.ID)
	}
	if alert.Timestamp.IsZero() {
		return nil, utils.Invalid(op, "alert %q has no timestamp", alert.ID)
	}
	if e.store == nil {
		return nil, utils.Unavailable(op, fmt.Errorf("evidence store not configured"))
	}

	w := e.cfg.lookback(tier)
	window := models.TimeRange{Start: alert.Timestamp.Add(-w), End: alert.Timestamp}

	qctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	items, err := e.store.Query(qctx, alert.ServiceID, window, models.Kinds(models.EvidenceMetric, models.EvidenceLog, models.EvidenceChange))
	cancel()
	if err != nil {
		e.logger.Warn("evidence query failed",
			"alert_id", alert.ID,
			"service", alert.ServiceID,
			"error", err,
		)
		return nil, utils.Unavailable(op, err)
	}

	var (
		changes = make(map[string][]models.ChangeEvent)
		series  = make(map[string][]models.MetricSample)
		logs    []models.LogEvent
	)
	for _, item := range items {
		switch {
		case item.Kind == models.EvidenceChange && item.Change != nil:
			changes[item.Change.CommitID] = append(changes[item.Change.CommitID], *item.Change)
		case item.Kind == models.EvidenceMetric && item.Metric != nil:
			series[item.Metric.Key] = append(series[item.Metric.Key], *item.Metric)
		case item.Kind == models.EvidenceLog && item.Log != nil:
			logs = append(logs, *item.Log)
		}
	}

	alertRef := models.AlertEvidence(alert).Ref()
	candidates := make([]*candidate, 0, len(changes)+len(series))
	candidates = append(candidates, e.changeCandidates(alert, alertRef, w, changes)...)
	candidates = append(candidates, e.metricCandidates(alert, alertRef, series)...)
	candidates = append(candidates, e.logCandidates(alert, alertRef, logs)...)

	if len(candidates) == 0 {
		e.logger.Debug("no correlated evidence", "alert_id", alert.ID, "evidence", len(items), "window", w)
		return []models.RootCause{unknownRootCause(alert, w)}, nil
	}

	causes := make([]models.RootCause, 0, len(candidates))
	for _, c := range candidates {
		sort.SliceStable(c.links, func(i, j int) bool { return c.links[i].ObservedAt.Before(c.links[j].ObservedAt) })
		causes = append(causes, models.RootCause{
			AlertID:     alert.ID,
			ServiceID:   alert.ServiceID,
			Signature:   Signature(alert.ServiceID, c.evidenceKind, c.location),
			Identity:    c.identity,
			Kind:        c.linkType,
			Location:    c.location,
			Confidence:  c.confidence(),
			Evidence:    c.links,
			Description: describe(c),
		})
	}
	SortRootCauses(causes)
	if len(causes) > e.cfg.TopK {
		causes = causes[:e.cfg.TopK]
	}
	causes[0].Accepted = true
	return causes, nil
}

// SortRootCauses orders by confidence desc, most recent evidence desc,
// signature asc, identity asc.
func SortRootCauses(causes []models.RootCause) {
	sort.SliceStable(causes, func(i, j int) bool {
		a, b := causes[i], causes[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.LatestEvidence(), b.LatestEvidence(); !la.Equal(lb) {
			return la.After(lb)
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Identity < b.Identity
	})
}

// changeCandidates emits one candidate per commit. Each file touched is scored
// by proximity (boosted on hot paths) and the strongest file becomes the link.
func (e *CorrelationEngine) changeCandidates(alert models.Alert, alertRef string, w time.Duration, byCommit map[string][]models.ChangeEvent) []*candidate {
	out := make([]*candidate, 0, len(byCommit))
	for commit, events := range byCommit {
		var (
			best    models.ChangeEvent
			boosted bool
			hints   []string
			authors []string
		)
		bestW := -1.0
		files := make([]string, 0, len(events))
		for _, ev := range events {
			files = append(files, ev.File)
			hints = appendUnique(hints, hintsFor(ev.DiffSummary)...)
			authors = appendUnique(authors, ev.Author)

			dt := alert.Timestamp.Sub(ev.Timestamp)
			weight := 1 - float64(dt)/float64(w)
			if weight < 0 {
				weight = 0
			}
			hot := e.hotPaths.Matches(alert.Type, ev)
			if hot {
				weight += (1 - weight) * e.cfg.HotPathBoost
			}
			weight = utils.Clamp01(weight)
			if weight > bestW || (weight == bestW && ev.Timestamp.After(best.Timestamp)) {
				best, bestW, boosted = ev, weight, hot
			}
		}
		if bestW <= 0 {
			continue
		}
		location := changeLocation(files)
		summary := fmt.Sprintf("commit %s by %s changed %s %s before the alert",
			shortCommit(commit), strings.Join(authors, ","), location, alert.Timestamp.Sub(best.Timestamp).Round(time.Second))
		if boosted {
			summary += " (hot path)"
		}
		out = append(out, &candidate{
			identity:     "change:" + commit,
			linkType:     models.LinkChangeProximity,
			evidenceKind: models.EvidenceChange,
			location:     location,
			summary:      summary,
			hints:        hints,
			links: []models.CausalLink{{
				FromEvidenceRef: models.ChangeEvidence(best).Ref(),
				ToAlertRef:      alertRef,
				LinkType:        models.LinkChangeProximity,
				Weight:          bestW,
				ObservedAt:      best.Timestamp,
			}},
		})
	}
	return out
}

// metricCandidates emits one candidate per metric key whose slope inflects
// inside the metric sub-window.
func (e *CorrelationEngine) metricCandidates(alert models.Alert, alertRef string, series map[string][]models.MetricSample) []*candidate {
	from := alert.Timestamp.Add(-e.cfg.MetricWindow)
	out := make([]*candidate, 0, len(series))
	for key, samples := range series {
		inf, ok := strongestInflection(samples, from, alert.Timestamp)
		if !ok {
			continue
		}
		weight := utils.Clamp01(inf.Score / e.cfg.MetricSaturation)
		if weight <= 0 {
			continue
		}
		out = append(out, &candidate{
			identity:     "metric:" + key,
			linkType:     models.LinkMetricCorrelation,
			evidenceKind: models.EvidenceMetric,
			location:     key,
			summary: fmt.Sprintf("metric %s changed slope (z=%.2f) %s before the alert",
				key, inf.Score, alert.Timestamp.Sub(inf.Sample.Timestamp).Round(time.Second)),
			links: []models.CausalLink{{
				FromEvidenceRef: models.MetricEvidence(inf.Sample).Ref(),
				ToAlertRef:      alertRef,
				LinkType:        models.LinkMetricCorrelation,
				Weight:          weight,
				ObservedAt:      inf.Sample.Timestamp,
			}},
		})
	}
	return out
}

// logCandidates groups log events at or above the alert's severity inside the
// log sub-window by key; each event adds the fixed temporal weight.
func (e *CorrelationEngine) logCandidates(alert models.Alert, alertRef string, logs []models.LogEvent) []*candidate {
	if e.cfg.TemporalWeight <= 0 {
		return nil
	}
	minRank := alert.Severity.Rank()
	if minRank < 1 {
		minRank = 1
	}
	from := alert.Timestamp.Add(-e.cfg.LogWindow)

	byKey := make(map[string]*candidate)
	var order []string
	for _, l := range logs {
		if l.Severity.Rank() < minRank || l.Timestamp.Before(from) || l.Timestamp.After(alert.Timestamp) {
			continue
		}
		c, ok := byKey[l.Key]
		if !ok {
			c = &candidate{
				identity:     "log:" + l.Key,
				linkType:     models.LinkTemporal,
				evidenceKind: models.EvidenceLog,
				location:     l.Key,
			}
			byKey[l.Key] = c
			order = append(order, l.Key)
		}
		c.links = append(c.links, models.CausalLink{
			FromEvidenceRef: models.LogEvidence(l).Ref(),
			ToAlertRef:      alertRef,
			LinkType:        models.LinkTemporal,
			Weight:          e.cfg.TemporalWeight,
			ObservedAt:      l.Timestamp,
		})
		if c.summary == "" && l.Text != "" {
			c.summary = l.Text
		}
	}

	out := make([]*candidate, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		sample := c.summary
		c.summary = fmt.Sprintf("%d log event(s) on %s at or above %s within %s of the alert",
			len(c.links), key, severityName(alert.Severity), e.cfg.LogWindow)
		if sample != "" {
			c.summary += ": " + truncate(sample, 120)
		}
		out = append(out, c)
	}
	return out
}

func unknownRootCause(alert models.Alert, w time.Duration) models.RootCause {
	return models.RootCause{
		AlertID:     alert.ID,
		ServiceID:   alert.ServiceID,
		Signature:   Signature(alert.ServiceID, models.EvidenceKind(models.LinkUnknown), alert.Type),
		Identity:    "unknown",
		Kind:        models.LinkUnknown,
		Location:    alert.Type,
		Confidence:  0,
		Evidence:    []models.CausalLink{},
		Description: fmt.Sprintf("no correlated evidence within %s before the alert", w),
		Accepted:    true,
	}
}

func describe(c *candidate) string {
	if len(c.hints) == 0 {
		return c.summary
	}
	return c.summary + "; " + strings.Join(c.hints, "; ")
}

func severityName(s models.Severity) string {
	if s.Valid() {
		return string(s)
	}
	return string(models.SeverityLow)
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

// truncate caps s at n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
