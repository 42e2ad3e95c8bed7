package usage

import (
	"context"
	"time"
)

// SeedFactory builds a fresh row for a window when GetOrCreate finds none.
type SeedFactory func() *AggregatedUsage

// WindowStore is the durable mapping (customerId, metricType, windowStart,
// isFinal=false) -> AggregatedUsage. Implementations must make GetOrCreate
// atomic with respect to concurrent callers racing to create the same key
// (a uniqueness constraint in storage), and Update a conditional write on
// Version (optimistic concurrency) returning errors.ErrStorageConflict on a
// lost race.
type WindowStore interface {
	// GetOrCreate returns the unique non-final row for key, creating one
	// via seed if none exists. created reports which branch was taken.
	GetOrCreate(ctx context.Context, key WindowKey, seed SeedFactory) (row *AggregatedUsage, created bool, err error)

	// Update performs a conditional write on row.Version. Returns
	// errors.ErrStorageConflict if the stored version has moved on;
	// callers reload and retry.
	Update(ctx context.Context, row *AggregatedUsage) error

	// ListExpired returns every non-final row whose WindowEnd has passed
	// the watermark.
	ListExpired(ctx context.Context, watermark time.Time) ([]*AggregatedUsage, error)

	// Finalize persists row with IsFinal=true. Safe to re-run: finalize
	// itself has no externally visible effect beyond the state already
	// committed by the first successful call.
	Finalize(ctx context.Context, row *AggregatedUsage) error

	// Get retrieves a row by aggregation id, final or not.
	Get(ctx context.Context, aggregationID string) (*AggregatedUsage, error)
}
