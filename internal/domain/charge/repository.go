package charge

import (
	"context"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
)

// maxSupersedesDepth bounds the WalkSupersedesChain traversal against a
// pathological or corrupted lineage, resolved iteratively rather than
// recursively so a cycle fails with an error instead of a stack overflow.
const maxSupersedesDepth = 64

// Repository persists rated charges and serves the invoice subsystem's
// period query.
type Repository interface {
	// Insert writes a new, immutable charge.
	Insert(ctx context.Context, c *RatedCharge) error

	// Get retrieves a single charge by id.
	Get(ctx context.Context, chargeID string) (*RatedCharge, error)

	// FindLatestForWindow returns the most recent charge (by CalculatedAt)
	// whose AggregationID refers to the aggregate for (customerID,
	// metricType, windowStart), or nil if none exists. Delta charges carry
	// no AggregationID and are never returned. The LateEventProcessor uses
	// this to set SupersedesChargeID.
	FindLatestForWindow(ctx context.Context, customerID, metricType string, windowStart time.Time) (*RatedCharge, error)

	// FindChargesForPeriod is the interface exposed to the invoice
	// subsystem: every charge for customerID with CalculatedAt in
	// [startDate, endDate), ordered by CalculatedAt ASC.
	FindChargesForPeriod(ctx context.Context, customerID string, startDate, endDate time.Time) ([]*RatedCharge, error)
}

// WalkSupersedesChain follows SupersedesChargeID links from start back to
// the original charge, iteratively (not recursively) and bounded by
// maxSupersedesDepth, returning the chain in traversal order (start first,
// original last). Returns errors.ErrInvalidOperation if the chain exceeds
// the depth cap or revisits a charge already seen, which indicates a cycle
// or corrupted lineage — the lineage must be acyclic.
func WalkSupersedesChain(ctx context.Context, repo Repository, start *RatedCharge) ([]*RatedCharge, error) {
	chain := []*RatedCharge{start}
	seen := map[string]bool{start.ChargeID: true}

	current := start
	for i := 0; i < maxSupersedesDepth; i++ {
		if current.SupersedesChargeID == nil {
			return chain, nil
		}
		if seen[*current.SupersedesChargeID] {
			return nil, errors.WithOp(errors.ErrInvalidOperation, "charge.WalkSupersedesChain")
		}

		prev, err := repo.Get(ctx, *current.SupersedesChargeID)
		if err != nil {
			return nil, err
		}

		chain = append(chain, prev)
		seen[prev.ChargeID] = true
		current = prev
	}

	return nil, errors.WithOp(errors.ErrInvalidOperation, "charge.WalkSupersedesChain: depth exceeded")
}
