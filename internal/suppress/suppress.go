package suppress

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-responder/internal/cache"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// DefaultCooldown is how long an alert shape stays suppressed after a decision.
const DefaultCooldown = 5 * time.Minute

// Suppressor remembers which alert first produced a decision for a
// {service, alert type} pair during the cooldown. Cache failures fail open.
type Suppressor struct {
	cache    cache.Provider
	cooldown time.Duration
	logger   *slog.Logger
}

// New builds a Suppressor. A non-positive cooldown uses DefaultCooldown.
func New(provider cache.Provider, cooldown time.Duration, logger *slog.Logger) *Suppressor {
	if provider == nil {
		provider = cache.NewMemoryProvider()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Suppressor{cache: provider, cooldown: cooldown, logger: utils.OrDefault(logger)}
}

func key(alert models.Alert) string {
	return "responder:suppress:" + strings.TrimSpace(alert.ServiceID) + "|" + strings.ToLower(strings.TrimSpace(alert.Type))
}

// Check returns the ID of the alert already decided for alert's shape, if any.
// An alert never suppresses itself.
func (s *Suppressor) Check(ctx context.Context, alert models.Alert) (string, bool) {
	data, err := s.cache.Get(ctx, key(alert))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("suppression lookup failed", "service", alert.ServiceID, "type", alert.Type, "error", err)
		}
		return "", false
	}
	first := string(data)
	if first == "" || first == alert.ID {
		return "", false
	}
	return first, true
}

// Mark claims alert's shape for the cooldown unless another alert holds it.
func (s *Suppressor) Mark(ctx context.Context, alert models.Alert) {
	ok, err := s.cache.SetNX(ctx, key(alert), []byte(alert.ID), s.cooldown)
	if err != nil {
		s.logger.Warn("suppression mark failed", "service", alert.ServiceID, "type", alert.Type, "error", err)
		return
	}
	if !ok {
		s.logger.Debug("suppression window already held", "service", alert.ServiceID, "type", alert.Type, "alert_id", alert.ID)
	}
}
