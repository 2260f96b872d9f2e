// Package evidence holds the read side the correlation engine queries and the
// append-only stores that back it.
package evidence

import (
	"context"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Store answers time-bounded evidence queries. Results are in ascending timestamp order.
type Store interface {
	Query(ctx context.Context, serviceID string, window models.TimeRange, kinds models.KindSet) ([]models.Evidence, error)
}

// Appender accepts new evidence. Existing evidence is never mutated.
type Appender interface {
	Append(ctx context.Context, items ...models.Evidence) error
}
