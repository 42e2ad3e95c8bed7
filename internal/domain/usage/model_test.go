package usage

import (
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_SumMetricAccumulates(t *testing.T) {
	key := WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: time.Now()}
	row := NewAggregatedUsage(key, time.Now().Add(time.Hour))

	row.Apply("evt-1", decimal.NewFromInt(1), time.Now())
	row.Apply("evt-2", decimal.NewFromInt(1), time.Now())
	row.Apply("evt-3", decimal.NewFromInt(1), time.Now())

	assert.Equal(t, "3", row.Value.String())
	assert.Equal(t, 3, row.EventCount)
}

func TestApply_MaxMetricKeepsHighestValue(t *testing.T) {
	key := WindowKey{CustomerID: "cust-1", MetricType: types.MetricStorageGBPeak, WindowStart: time.Now()}
	row := NewAggregatedUsage(key, time.Now().Add(time.Hour))

	row.Apply("evt-1", decimal.NewFromInt(10), time.Now())
	row.Apply("evt-2", decimal.NewFromInt(55), time.Now())
	row.Apply("evt-3", decimal.NewFromInt(30), time.Now())

	assert.Equal(t, "55", row.Value.String())
	assert.Equal(t, 3, row.EventCount)
}

func TestHasEvent(t *testing.T) {
	key := WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: time.Now()}
	row := NewAggregatedUsage(key, time.Now().Add(time.Hour))
	row.Apply("evt-1", decimal.NewFromInt(1), time.Now())

	assert.True(t, row.HasEvent("evt-1"))
	assert.False(t, row.HasEvent("evt-2"))
}

func TestFinalize_MarksFinalAndBumpsVersion(t *testing.T) {
	key := WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: time.Now()}
	row := NewAggregatedUsage(key, time.Now().Add(time.Hour))
	require.Equal(t, 0, row.Version)

	row.Finalize(time.Now())

	assert.True(t, row.IsFinal)
	assert.Equal(t, 1, row.Version)
}
