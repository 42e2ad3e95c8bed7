package usage

import (
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WindowKey identifies the unique non-final aggregate row for a
// (customerID, metricType, windowStart) triple.
type WindowKey struct {
	CustomerID string
	MetricType types.MetricType
	WindowStart time.Time
}

// AggregatedUsage is the partial (or, once IsFinal, frozen) accumulation of
// events within one event-time window. It is the row WindowStore manages.
//
// (CustomerID, MetricType, WindowStart, WindowEnd) is unique when
// ReratingJobID is NULL; a non-null ReratingJobID lets a superseding
// aggregation coexist with the original for the same window.
type AggregatedUsage struct {
	AggregationID string               `json:"aggregation_id" db:"aggregation_id"`
	CustomerID    string               `json:"customer_id" db:"customer_id"`
	MetricType    types.MetricType     `json:"metric_type" db:"metric_type"`
	WindowStart   time.Time            `json:"window_start" db:"window_start"`
	WindowEnd     time.Time            `json:"window_end" db:"window_end"`
	Value         decimal.Decimal      `json:"value" db:"value"`
	Unit          types.Unit           `json:"unit" db:"unit"`
	EventCount    int                  `json:"event_count" db:"event_count"`
	EventIDs      []string             `json:"event_ids" db:"event_ids"`
	IsFinal       bool                 `json:"is_final" db:"is_final"`
	Version       int                  `json:"version" db:"version"`
	ComputedAt    time.Time            `json:"computed_at" db:"computed_at"`
	ReratingJobID *string              `json:"rerating_job_id,omitempty" db:"rerating_job_id"`
}

// NewAggregatedUsage seeds the first row for a window — used as the
// WindowStore.GetOrCreate seedFactory.
func NewAggregatedUsage(key WindowKey, windowEnd time.Time) *AggregatedUsage {
	return &AggregatedUsage{
		AggregationID: uuid.New().String(),
		CustomerID:    key.CustomerID,
		MetricType:    key.MetricType,
		WindowStart:   key.WindowStart,
		WindowEnd:     windowEnd,
		Value:         decimal.Zero,
		Unit:          key.MetricType.Unit(),
		EventCount:    0,
		EventIDs:      nil,
		IsFinal:       false,
		Version:       0,
	}
}

// HasEvent reports whether eventID has already been folded into this
// aggregate — the idempotence check the Aggregator uses before updating.
func (a *AggregatedUsage) HasEvent(eventID string) bool {
	for _, id := range a.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// Apply folds one event's contribution into the aggregate according to the
// metric's aggregation function, appends eventID, and stamps computedAt.
// Callers must have already checked HasEvent for idempotence.
func (a *AggregatedUsage) Apply(eventID string, addend decimal.Decimal, at time.Time) {
	switch a.MetricType.Aggregator() {
	case types.AggregationMax:
		if addend.GreaterThan(a.Value) {
			a.Value = addend
		}
	default: // AggregationSum
		a.Value = a.Value.Add(addend)
	}
	a.Value = types.RoundQuantity(a.Value)
	a.EventIDs = append(a.EventIDs, eventID)
	a.EventCount = len(a.EventIDs)
	a.ComputedAt = at
}

// Finalize one-way transitions the aggregate to immutable state.
func (a *AggregatedUsage) Finalize(at time.Time) {
	a.IsFinal = true
	a.Version++
	a.ComputedAt = at
}
