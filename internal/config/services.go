package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// LoadServices merges inline service entries with the optional services file.
// File entries win on duplicate IDs. Tiers are upper-cased; unknown tiers are kept
// as-is so the decision engine can flag them.
func LoadServices(cfg ServicesConfig) (map[string]models.Service, error) {
	out := make(map[string]models.Service, len(cfg.Items))
	add := func(svc models.Service) error {
		if strings.TrimSpace(svc.ID) == "" {
			return fmt.Errorf("service entry without id")
		}
		if tier, ok := models.ParseTier(string(svc.Tier)); ok {
			svc.Tier = tier
		}
		if svc.Name == "" {
			svc.Name = svc.ID
		}
		out[svc.ID] = svc
		return nil
	}
	for _, svc := range cfg.Items {
		if err := add(svc); err != nil {
			return nil, err
		}
	}
	if cfg.Path == "" {
		return out, nil
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read services: %w", err)
	}
	var doc struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}
	for _, svc := range doc.Services {
		if err := add(svc); err != nil {
			return nil, err
		}
	}
	return out, nil
}
