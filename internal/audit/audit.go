package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/golang/snappy"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Noop discards analyses.
type Noop struct{}

// PublishAnalysis implements the decision sink contract.
func (Noop) PublishAnalysis(context.Context, models.Analysis) error { return nil }

// ObjectKey returns the archive key for an analysis: <prefix>/<service>/<alert>.json.sz.
func ObjectKey(prefix string, analysis models.Analysis) string {
	return path.Join(strings.Trim(prefix, "/"), safeSegment(analysis.Alert.ServiceID), safeSegment(analysis.Alert.ID)+".json.sz")
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// Encode serialises an analysis as snappy-compressed JSON.
func Encode(analysis models.Analysis) ([]byte, error) {
	body, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return snappy.Encode(nil, body), nil
}

// Decode reverses Encode.
func Decode(data []byte) (models.Analysis, error) {
	var analysis models.Analysis
	body, err := snappy.Decode(nil, data)
	if err != nil {
		return analysis, fmt.Errorf("decompress analysis: %w", err)
	}
	if err := json.Unmarshal(body, &analysis); err != nil {
		return analysis, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}
