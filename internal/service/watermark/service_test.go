package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/testutil"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestWatermarkService(t *testing.T) (*Service, *testutil.InMemoryWindowStore, *testutil.InMemoryPubSub) {
	t.Helper()
	store := testutil.NewInMemoryWindowStore()
	ps := testutil.NewInMemoryPubSub()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	svc := NewService(store, ps, cfg, log)
	return svc, store, ps
}

func TestTick_FinalizesExpiredWindowAndPublishes(t *testing.T) {
	svc, store, ps := newTestWatermarkService(t)
	ctx := context.Background()

	windowStart := time.Now().UTC().Add(-3 * time.Hour)
	key := usage.WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: windowStart}
	row, _, err := store.GetOrCreate(ctx, key, func() *usage.AggregatedUsage {
		return usage.NewAggregatedUsage(key, windowStart.Add(time.Hour))
	})
	require.NoError(t, err)
	row.Apply("evt-1", decimal.NewFromInt(1), time.Now().UTC())
	row.Version++
	require.NoError(t, store.Update(ctx, row))

	require.NoError(t, svc.Tick(ctx))

	finalized, err := store.Get(ctx, row.AggregationID)
	require.NoError(t, err)
	require.True(t, finalized.IsFinal)

	msgs := ps.GetMessages(svc.topic)
	require.Len(t, msgs, 1)
}

func TestTick_LeavesUnexpiredWindowAlone(t *testing.T) {
	svc, store, ps := newTestWatermarkService(t)
	ctx := context.Background()

	windowStart := time.Now().UTC().Add(-5 * time.Minute)
	key := usage.WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: windowStart}
	row, _, err := store.GetOrCreate(ctx, key, func() *usage.AggregatedUsage {
		return usage.NewAggregatedUsage(key, windowStart.Add(time.Hour))
	})
	require.NoError(t, err)

	require.NoError(t, svc.Tick(ctx))

	untouched, err := store.Get(ctx, row.AggregationID)
	require.NoError(t, err)
	require.False(t, untouched.IsFinal)
	require.Empty(t, ps.GetMessages(svc.topic))
}

func TestWatermark_IsNowMinusAllowedLateness(t *testing.T) {
	svc, _, _ := newTestWatermarkService(t)
	now := time.Now().UTC()
	wm := svc.Watermark(now)
	require.Equal(t, now.Add(-svc.allowedLateness), wm)
}
