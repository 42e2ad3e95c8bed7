package charge

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierBreakdown is one line of a tiered/volume calculation's metadata,
// recording how much of the subtotal each tier contributed.
type TierBreakdown struct {
	Tier      int             `json:"tier"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CalculationMetadata captures everything needed to explain, and to
// byte-identically reproduce, a RatedCharge's subtotal.
type CalculationMetadata struct {
	Formula       string          `json:"formula"`
	TiersApplied  []TierBreakdown `json:"tiers_applied,omitempty"`
	SourceEventIDs []string       `json:"source_event_ids,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// RatedCharge is an immutable priced outcome of rating one AggregatedUsage
// (or, for the late path, one delta quantity) against a PriceRule snapshot.
type RatedCharge struct {
	ChargeID      string    `json:"charge_id" db:"charge_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	AggregationID *string   `json:"aggregation_id,omitempty" db:"aggregation_id"`
	PriceBookID   string    `json:"price_book_id" db:"price_book_id"`
	PriceVersion  int       `json:"price_version" db:"price_version"`
	RuleID        string    `json:"rule_id" db:"rule_id"`

	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal" db:"subtotal"`
	Currency  string          `json:"currency" db:"currency"`

	CalculationMetadata CalculationMetadata `json:"calculation_metadata" db:"calculation_metadata"`

	CalculatedAt        time.Time `json:"calculated_at" db:"calculated_at"`
	ReratingJobID       *string   `json:"rerating_job_id,omitempty" db:"rerating_job_id"`
	SupersedesChargeID  *string   `json:"supersedes_charge_id,omitempty" db:"supersedes_charge_id"`
}

// IsDelta reports whether this charge was produced by the late/re-rating
// path rather than the primary aggregation -> rating path.
func (c *RatedCharge) IsDelta() bool {
	return c.ReratingJobID != nil
}
