package pricebook

import (
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/shopspring/decimal"
)

// PricingModel is the closed set of rating strategies a PriceRule may use.
type PricingModel string

const (
	PricingFlat      PricingModel = "flat"
	PricingPerUnit   PricingModel = "per_unit"
	PricingTiered    PricingModel = "tiered"
	PricingVolume    PricingModel = "volume"
	PricingCommitted PricingModel = "committed"
)

// PriceBook is a temporally effective pricing catalog. Effective intervals
// of books sharing a ParentID chain must not overlap.
type PriceBook struct {
	PriceBookID    string     `json:"price_book_id" db:"price_book_id"`
	Name           string     `json:"name" db:"name"`
	Version        int        `json:"version" db:"version"`
	EffectiveFrom  time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty" db:"effective_until"`
	Currency       string     `json:"currency" db:"currency"`
	ParentID       *string    `json:"parent_id,omitempty" db:"parent_id"`

	types.BaseModel
}

// Covers reports whether at is within [EffectiveFrom, EffectiveUntil).
func (p *PriceBook) Covers(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveUntil == nil || at.Before(*p.EffectiveUntil)
}

// PriceTier is one band of a tiered/volume PriceRule. UpTo=nil denotes the
// unbounded top tier.
type PriceTier struct {
	Tier       int              `json:"tier"`
	UpTo       *decimal.Decimal `json:"up_to,omitempty"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	FlatFee    *decimal.Decimal `json:"flat_fee,omitempty"`
}

// PriceRule is the pricing definition for one (priceBookId, metricType)
// pair. Tiers must be sorted ascending by UpTo, with at most one unbounded
// (UpTo=nil) tier, which must be last; Tier ordinals must be dense 1..N.
type PriceRule struct {
	RuleID       string           `json:"rule_id" db:"rule_id"`
	PriceBookID  string           `json:"price_book_id" db:"price_book_id"`
	MetricType   types.MetricType `json:"metric_type" db:"metric_type"`
	PricingModel PricingModel     `json:"pricing_model" db:"pricing_model"`
	Tiers        []PriceTier      `json:"tiers" db:"tiers"`
	Unit         types.Unit       `json:"unit" db:"unit"`

	types.BaseModel
}
