package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// ActionSpec describes one remediation kind the executor understands.
type ActionSpec struct {
	Kind   string           `yaml:"kind"`
	Risk   models.RiskLevel `yaml:"risk"`
	Impact models.Impact    `yaml:"impact"`
}

// CatalogMatch defines optional attributes for rule matching.
type CatalogMatch struct {
	Kind             models.LinkType `yaml:"kind"`
	AlertType        string          `yaml:"alertType"`
	LocationContains []string        `yaml:"locationContains"`
}

// CatalogRule maps a root cause shape to candidate action kinds.
type CatalogRule struct {
	ID      string       `yaml:"id"`
	Match   CatalogMatch `yaml:"match"`
	Actions []string     `yaml:"actions"`
}

// CatalogFile is the YAML root structure.
type CatalogFile struct {
	Actions  []ActionSpec                 `yaml:"actions"`
	Rules    []CatalogRule                `yaml:"rules"`
	Defaults map[models.LinkType][]string `yaml:"defaults"`
}

// Catalog resolves candidate actions for a root cause. Rules are evaluated in
// order and the first match wins; otherwise the per-kind default applies.
type Catalog struct {
	specs    map[string]ActionSpec
	rules    []CatalogRule
	defaults map[models.LinkType][]string
}

// DefaultCatalog returns the built-in action catalog.
func DefaultCatalog() *Catalog {
	specs := []ActionSpec{
		{Kind: "rollback", Risk: models.RiskLow, Impact: models.Impact{Description: "revert to the previous release", DowntimeSeconds: 60}},
		{Kind: "hotfix-deploy", Risk: models.RiskMedium, Impact: models.Impact{Description: "ship a forward fix", DowntimeSeconds: 120}},
		{Kind: "restart", Risk: models.RiskMedium, Impact: models.Impact{Description: "rolling restart of service instances", DowntimeSeconds: 30}},
		{Kind: "scale-up", Risk: models.RiskLow, Impact: models.Impact{Description: "add replicas"}},
		{Kind: "clear-cache", Risk: models.RiskLow, Impact: models.Impact{Description: "flush application caches", DowntimeSeconds: 5}},
		{Kind: "increase-pool-size", Risk: models.RiskLow, Impact: models.Impact{Description: "raise connection pool limits"}},
		{Kind: "cleanup-logs", Risk: models.RiskLow, Impact: models.Impact{Description: "rotate and delete old logs"}},
		{Kind: "increase-memory", Risk: models.RiskLow, Impact: models.Impact{Description: "raise memory limits", DowntimeSeconds: 60}},
		{Kind: "increase-disk", Risk: models.RiskLow, Impact: models.Impact{Description: "grow the volume"}},
	}
	rules := []CatalogRule{
		{ID: "oom", Match: CatalogMatch{Kind: models.LinkMetricCorrelation, AlertType: "oom"}, Actions: []string{"increase-memory", "restart", "scale-up"}},
		{ID: "memory", Match: CatalogMatch{Kind: models.LinkMetricCorrelation, LocationContains: []string{"memory", "mem", "oom", "heap", "rss"}}, Actions: []string{"restart", "scale-up", "clear-cache"}},
		{ID: "cpu", Match: CatalogMatch{Kind: models.LinkMetricCorrelation, LocationContains: []string{"cpu", "load"}}, Actions: []string{"scale-up", "restart"}},
		{ID: "connection-pool", Match: CatalogMatch{Kind: models.LinkMetricCorrelation, LocationContains: []string{"connection", "pool"}}, Actions: []string{"restart", "increase-pool-size"}},
		{ID: "connection-errors", Match: CatalogMatch{Kind: models.LinkTemporal, LocationContains: []string{"connection", "pool"}}, Actions: []string{"restart", "increase-pool-size"}},
		{ID: "disk", Match: CatalogMatch{Kind: models.LinkMetricCorrelation, LocationContains: []string{"disk", "filesystem", "inode", "volume"}}, Actions: []string{"cleanup-logs", "increase-disk"}},
	}
	defaults := map[models.LinkType][]string{
		models.LinkChangeProximity:   {"rollback", "hotfix-deploy"},
		models.LinkMetricCorrelation: {"restart", "scale-up"},
		models.LinkTemporal:          {"restart", "clear-cache"},
	}
	cat, err := newCatalog(specs, rules, defaults)
	if err != nil {
		panic(err)
	}
	return cat
}

// LoadCatalog reads a catalog file and overlays it on the defaults. Action
// specs in the file replace built-ins of the same kind; rules, when present,
// replace the built-in rules. An empty path or missing file yields the defaults.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.OrDefault(logger).Warn("action catalog not found, using defaults", "path", path)
			return base, nil
		}
		return nil, err
	}
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse action catalog: %w", err)
	}

	specs := make(map[string]ActionSpec, len(base.specs)+len(file.Actions))
	for k, v := range base.specs {
		specs[k] = v
	}
	for _, spec := range file.Actions {
		spec.Kind = strings.TrimSpace(spec.Kind)
		if risk, ok := models.ParseRiskLevel(string(spec.Risk)); ok {
			spec.Risk = risk
		}
		specs[spec.Kind] = spec
	}
	rules := base.rules
	if len(file.Rules) > 0 {
		rules = file.Rules
	}
	defaults := make(map[models.LinkType][]string, len(base.defaults))
	for k, v := range base.defaults {
		defaults[k] = v
	}
	for k, v := range file.Defaults {
		defaults[models.LinkType(strings.ToUpper(string(k)))] = v
	}

	list := make([]ActionSpec, 0, len(specs))
	for _, spec := range specs {
		list = append(list, spec)
	}
	return newCatalog(list, rules, defaults)
}

func newCatalog(specs []ActionSpec, rules []CatalogRule, defaults map[models.LinkType][]string) (*Catalog, error) {
	c := &Catalog{
		specs:    make(map[string]ActionSpec, len(specs)),
		rules:    rules,
		defaults: defaults,
	}
	for _, spec := range specs {
		if spec.Kind == "" {
			return nil, fmt.Errorf("action catalog: action without kind")
		}
		if spec.Risk.Rank() > models.RiskHigh.Rank() {
			return nil, fmt.Errorf("action catalog: action %q has unknown risk %q", spec.Kind, spec.Risk)
		}
		if spec.Impact.DowntimeSeconds < 0 {
			return nil, fmt.Errorf("action catalog: action %q has negative downtime", spec.Kind)
		}
		c.specs[spec.Kind] = spec
	}
	for _, rule := range rules {
		if err := c.checkKinds("rule "+rule.ID, rule.Actions); err != nil {
			return nil, err
		}
	}
	for kind, actions := range defaults {
		if err := c.checkKinds("default "+string(kind), actions); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) checkKinds(where string, kinds []string) error {
	for _, k := range kinds {
		if _, ok := c.specs[k]; !ok {
			return fmt.Errorf("action catalog: %s references unknown action %q", where, k)
		}
	}
	return nil
}

// HasKind reports whether kind is a catalog action.
func (c *Catalog) HasKind(kind string) bool {
	_, ok := c.specs[kind]
	return ok
}

// Kinds lists the catalog action kinds in sorted order.
func (c *Catalog) Kinds() []string {
	out := make([]string, 0, len(c.specs))
	for k := range c.specs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Spec returns the action spec for kind.
func (c *Catalog) Spec(kind string) (ActionSpec, bool) {
	spec, ok := c.specs[kind]
	return spec, ok
}

// Actions returns the candidate actions for rc, targeting service target.
func (c *Catalog) Actions(rc models.RootCause, alertType, target string) []models.Action {
	if rc.IsUnknown() {
		return nil
	}
	kinds := c.defaults[rc.Kind]
	for _, rule := range c.rules {
		if rule.Match.Kind != "" && rule.Match.Kind != rc.Kind {
			continue
		}
		if rule.Match.AlertType != "" && !strings.EqualFold(rule.Match.AlertType, alertType) {
			continue
		}
		if len(rule.Match.LocationContains) > 0 && !locationContains(rc.Location, rule.Match.LocationContains) {
			continue
		}
		kinds = rule.Actions
		break
	}

	out := make([]models.Action, 0, len(kinds))
	for _, kind := range appendUnique(nil, kinds...) {
		spec := c.specs[kind]
		out = append(out, models.Action{
			Kind:            spec.Kind,
			TargetServiceID: target,
			EstimatedImpact: spec.Impact,
			RiskLevel:       spec.Risk,
		})
	}
	return out
}

func locationContains(location string, keywords []string) bool {
	lower := strings.ToLower(location)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
