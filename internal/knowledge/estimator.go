package knowledge

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-responder/internal/metrics"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// DefaultPrior is the success rate assumed for unseen pairs.
const DefaultPrior = 0.5

// Estimator turns counters into success rates, bounding every store call with a timeout.
type Estimator struct {
	store   Store
	prior   float64
	timeout time.Duration
	logger  *slog.Logger
}

// NewEstimator wraps store. A prior outside [0,1] falls back to DefaultPrior.
func NewEstimator(store Store, prior float64, timeout time.Duration, logger *slog.Logger) *Estimator {
	if prior < 0 || prior > 1 {
		prior = DefaultPrior
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Estimator{store: store, prior: prior, timeout: timeout, logger: utils.OrDefault(logger)}
}

// Prior returns the configured prior.
func (e *Estimator) Prior() float64 { return e.prior }

// Store exposes the underlying store.
func (e *Estimator) Store() Store { return e.store }

// SuccessRate returns successes/attempts for the pair, or the prior when unseen.
// A failing or slow store surfaces as ErrDataUnavailable.
func (e *Estimator) SuccessRate(ctx context.Context, signature, actionKind string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	rec, err := e.store.Lookup(ctx, signature, actionKind)
	if err != nil {
		e.logger.Warn("knowledge lookup failed", "signature", signature, "action", actionKind, "error", err)
		metrics.ObserveKnowledgeError("lookup")
		return 0, utils.Unavailable("knowledge.success_rate", err)
	}
	return utils.Clamp01(rec.SuccessRate(e.prior)), nil
}

// Record increments the pair's counters under the same timeout.
func (e *Estimator) Record(ctx context.Context, signature, actionKind string, succeeded bool) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.store.RecordOutcome(ctx, signature, actionKind, succeeded); err != nil {
		e.logger.Warn("knowledge write failed", "signature", signature, "action", actionKind, "error", err)
		return utils.Unavailable("knowledge.record", err)
	}
	return nil
}
