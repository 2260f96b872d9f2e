package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// HotPath marks code whose changes are known to trigger a given alert type.
type HotPath struct {
	AlertType string           `yaml:"alertType"`
	File      string           `yaml:"file"`
	Lines     models.LineRange `yaml:"lines"`
}

// HotPathFile is the YAML root structure.
type HotPathFile struct {
	HotPaths []HotPath `yaml:"hotPaths"`
}

// HotPathTable answers whether a change touches a hot path for an alert type.
type HotPathTable struct {
	paths []HotPath
}

// NewHotPathTable builds a table from entries.
func NewHotPathTable(paths ...HotPath) *HotPathTable {
	return &HotPathTable{paths: append([]HotPath(nil), paths...)}
}

// LoadHotPaths reads a hot path table. An empty path or missing file yields an empty table.
func LoadHotPaths(p string, logger *slog.Logger) (*HotPathTable, error) {
	if p == "" {
		return NewHotPathTable(), nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.OrDefault(logger).Warn("hot path table not found, boosting disabled", "path", p)
			return NewHotPathTable(), nil
		}
		return nil, err
	}
	var file HotPathFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse hot paths: %w", err)
	}
	for i, hp := range file.HotPaths {
		if strings.TrimSpace(hp.File) == "" {
			return nil, fmt.Errorf("hot path %d has no file", i)
		}
		if _, err := path.Match(hp.File, ""); err != nil {
			return nil, fmt.Errorf("hot path %d: bad pattern %q: %w", i, hp.File, err)
		}
	}
	return NewHotPathTable(file.HotPaths...), nil
}

// Len returns the number of entries.
func (t *HotPathTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.paths)
}

// Matches reports whether change touches a hot path registered for alertType.
// Entries without an alert type apply to every alert type.
func (t *HotPathTable) Matches(alertType string, change models.ChangeEvent) bool {
	if t == nil {
		return false
	}
	for _, hp := range t.paths {
		if hp.AlertType != "" && !strings.EqualFold(hp.AlertType, alertType) {
			continue
		}
		if !fileMatches(hp.File, change.File) {
			continue
		}
		if hp.Lines.Start > 0 && !hp.Lines.Overlaps(change.LineRange) {
			continue
		}
		return true
	}
	return false
}

// fileMatches accepts glob patterns, directory prefixes ending in "/" and exact paths.
func fileMatches(pattern, file string) bool {
	file = strings.TrimPrefix(file, "./")
	pattern = strings.TrimPrefix(pattern, "./")
	if strings.ContainsAny(pattern, "*?[") {
		ok, _ := path.Match(pattern, file)
		return ok
	}
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(file, pattern)
	}
	return file == pattern
}
