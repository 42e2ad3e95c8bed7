package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *testutil.InMemoryWindowStore, *testutil.InMemoryPubSub) {
	t.Helper()
	store := testutil.NewInMemoryWindowStore()
	ps := testutil.NewInMemoryPubSub()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	svc := NewService(store, ps, cfg, log)
	return svc, store, ps
}

func TestProcess_SumAggregation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Hour)

	for i := 0; i < 3; i++ {
		evt := telemetry.NewEvent("api_calls", "cust-1", base.Add(time.Duration(i)*time.Minute), nil, "test")
		require.NoError(t, svc.Process(ctx, evt))
	}

	rows, err := store.ListExpired(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 3, rows[0].EventCount)
	require.Equal(t, "3", rows[0].Value.String())
}

func TestProcess_MaxAggregation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Hour)

	values := []float64{10, 55, 30}
	for i, v := range values {
		evt := telemetry.NewEvent("storage_gb_peak", "cust-1", base.Add(time.Duration(i)*time.Minute), map[string]interface{}{"value": v}, "test")
		require.NoError(t, svc.Process(ctx, evt))
	}

	rows, err := store.ListExpired(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "55", rows[0].Value.String())
}

func TestProcess_IdempotentRedelivery(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Hour)

	evt := telemetry.NewEvent("api_calls", "cust-1", base, nil, "test")
	require.NoError(t, svc.Process(ctx, evt))
	require.NoError(t, svc.Process(ctx, evt)) // redelivered, same eventId

	rows, err := store.ListExpired(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].EventCount)
	require.Equal(t, "1", rows[0].Value.String())
}

func TestProcess_LateEventRedirected(t *testing.T) {
	svc, _, ps := newTestService(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-3 * time.Hour)
	evt := telemetry.NewEvent("api_calls", "cust-1", old, nil, "test")

	require.NoError(t, svc.Process(ctx, evt))

	msgs := ps.GetMessages(svc.lateTopic)
	require.Len(t, msgs, 1)
}
