package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Event is an immutable-once-ingested unit of customer telemetry. EventID is
// the deduplication key; EventTime is the authoritative, event-time
// timestamp used by the aggregator (not IngestionTime, which is
// processing-time and set by EventIngest).
type Event struct {
	EventID       string                 `json:"event_id" db:"event_id" validate:"required"`
	EventType     string                 `json:"event_type" db:"event_type" validate:"required"`
	CustomerID    string                 `json:"customer_id" db:"customer_id" validate:"required"`
	EventTime     time.Time              `json:"event_time" db:"event_time" validate:"required"`
	IngestionTime time.Time              `json:"ingestion_time" db:"ingestion_time"`
	Metadata      map[string]interface{} `json:"metadata" db:"metadata"`
	Source        string                 `json:"source" db:"source"`
}

// NewEvent fills in a generated ULID event id and normalizes eventTime to
// UTC. IngestionTime is left zero; EventIngest stamps it before persisting.
func NewEvent(eventType, customerID string, eventTime time.Time, metadata map[string]interface{}, source string) *Event {
	return &Event{
		EventID:   ulid.Make().String(),
		EventType: eventType,
		CustomerID: customerID,
		EventTime:  eventTime.UTC(),
		Metadata:   metadata,
		Source:     source,
	}
}

// UnmarshalJSON decodes Event with metadata numbers kept as json.Number
// rather than float64, so NumericValue can feed decimal.NewFromString
// instead of round-tripping a quantity through binary floating point.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := &struct{ *alias }{alias: (*alias)(e)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(aux)
}

// Validate checks required fields and the event-time sanity clamp:
// eventTime must not be more than a day ahead of ingestionTime.
func (e *Event) Validate() error {
	if err := validator.New().Struct(e); err != nil {
		return err
	}
	if !e.IngestionTime.IsZero() && e.EventTime.After(e.IngestionTime.Add(24*time.Hour)) {
		return fmt.Errorf("event_time %s is more than 1 day ahead of ingestion_time %s", e.EventTime, e.IngestionTime)
	}
	return nil
}

// NumericValue extracts metadata["value"] as a decimal.Decimal, defaulting
// to def when absent or not numeric. Used by the aggregator to resolve the
// addend (SUM metrics) or candidate (MAX metrics) for an event. A
// json.Number (the shape UnmarshalJSON produces for a decoded event) is
// parsed with decimal.NewFromString so the value never passes through
// float64; the int/int64/float64 cases only cover values set directly in
// Go code (tests, NewEvent callers) rather than JSON decoding.
func (e *Event) NumericValue(def float64) decimal.Decimal {
	fallback := decimal.NewFromFloat(def)
	if e.Metadata == nil {
		return fallback
	}
	v, ok := e.Metadata["value"]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return fallback
		}
		return d
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case float64:
		return decimal.NewFromFloat(n)
	default:
		return fallback
	}
}

// LateEnvelope wraps an Event redirected to the late-events stream, carrying
// the processing-time context under which it was judged late.
type LateEnvelope struct {
	Event     Event     `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
	Watermark  time.Time `json:"watermark"`
}
