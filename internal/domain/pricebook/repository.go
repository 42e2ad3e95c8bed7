package pricebook

import (
	"context"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
)

// Repository resolves price books and rules for the Rater.
type Repository interface {
	// FindEffective returns the unique book with EffectiveFrom <= at <
	// EffectiveUntil (or open-ended), ordered by EffectiveFrom DESC,
	// taking the first. Returns errors.ErrNoPriceBook if none match.
	FindEffective(ctx context.Context, at time.Time) (*PriceBook, error)

	// FindRule returns the rule for (priceBookID, metricType). Returns
	// errors.ErrNoPriceRule if none match.
	FindRule(ctx context.Context, priceBookID string, metricType types.MetricType) (*PriceRule, error)

	// GetBook retrieves a price book by id, regardless of effective window.
	GetBook(ctx context.Context, priceBookID string) (*PriceBook, error)
}
