package telemetry

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_GeneratesMonotonicSortableIDs(t *testing.T) {
	now := time.Now().UTC()
	a := NewEvent("api_calls", "cust-1", now, nil, "test")
	b := NewEvent("api_calls", "cust-1", now, nil, "test")
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Less(t, a.EventID, b.EventID)
}

func TestValidate_RejectsMissingFields(t *testing.T) {
	e := &Event{}
	require.Error(t, e.Validate())
}

func TestValidate_RejectsEventTimeFarAheadOfIngestionTime(t *testing.T) {
	now := time.Now().UTC()
	e := NewEvent("api_calls", "cust-1", now.Add(48*time.Hour), nil, "test")
	e.IngestionTime = now
	require.Error(t, e.Validate())
}

func TestValidate_AcceptsEventTimeSlightlyAhead(t *testing.T) {
	now := time.Now().UTC()
	e := NewEvent("api_calls", "cust-1", now.Add(time.Hour), nil, "test")
	e.IngestionTime = now
	require.NoError(t, e.Validate())
}

func TestNumericValue_DefaultsWhenAbsentOrNotNumeric(t *testing.T) {
	e := NewEvent("api_calls", "cust-1", time.Now(), nil, "test")
	assert.True(t, decimal.NewFromInt(7).Equal(e.NumericValue(7)))

	e.Metadata = map[string]interface{}{"value": "not-a-number"}
	assert.True(t, decimal.NewFromInt(7).Equal(e.NumericValue(7)))
}

func TestNumericValue_ExtractsNumericTypes(t *testing.T) {
	e := NewEvent("storage_gb_peak", "cust-1", time.Now(), map[string]interface{}{"value": 42}, "test")
	assert.True(t, decimal.NewFromInt(42).Equal(e.NumericValue(1)))

	e.Metadata["value"] = int64(99)
	assert.True(t, decimal.NewFromInt(99).Equal(e.NumericValue(1)))

	e.Metadata["value"] = 3.5
	assert.True(t, decimal.NewFromFloat(3.5).Equal(e.NumericValue(1)))
}

func TestNumericValue_ParsesJSONNumberExactly(t *testing.T) {
	e := &Event{}
	require.NoError(t, e.UnmarshalJSON([]byte(`{"event_id":"evt-1","event_type":"api_calls","customer_id":"cust-1","event_time":"2026-01-01T00:00:00Z","metadata":{"value":19.999999}}`)))
	assert.True(t, decimal.RequireFromString("19.999999").Equal(e.NumericValue(0)))
}
