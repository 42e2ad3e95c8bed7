package raterating

import (
	"context"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/charge"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/pricebook"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/rater"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/testutil"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProcess_EmitsDeltaChargeSupersedingPrior(t *testing.T) {
	ctx := context.Background()
	cfg := config.GetDefaultConfig()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	windowStart := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	windows := testutil.NewInMemoryWindowStore()
	key := usage.WindowKey{CustomerID: "cust-1", MetricType: types.MetricAPICalls, WindowStart: windowStart}
	row, _, err := windows.GetOrCreate(ctx, key, func() *usage.AggregatedUsage {
		return usage.NewAggregatedUsage(key, windowStart.Add(time.Hour))
	})
	require.NoError(t, err)

	charges := testutil.NewInMemoryChargeStore(windows)
	priorChargeID := uuid.New().String()
	require.NoError(t, charges.Insert(ctx, &charge.RatedCharge{
		ChargeID:      priorChargeID,
		CustomerID:    "cust-1",
		AggregationID: &row.AggregationID,
		PriceBookID:   "book-1",
		Quantity:      decimal.NewFromInt(10),
		Subtotal:      decimal.NewFromInt(1),
		CalculatedAt:  windowStart.Add(90 * time.Minute),
	}))

	books := testutil.NewInMemoryPriceBookStore()
	books.AddBook(&pricebook.PriceBook{PriceBookID: "book-1", Version: 1, EffectiveFrom: windowStart.Add(-time.Hour), Currency: "USD"})
	books.AddRule(&pricebook.PriceRule{
		RuleID:       "rule-1",
		PriceBookID:  "book-1",
		MetricType:   types.MetricAPICalls,
		PricingModel: pricebook.PricingPerUnit,
		Tiers:        []pricebook.PriceTier{{Tier: 1, UnitPrice: decimal.NewFromFloat(0.01)}},
	})

	ps := testutil.NewInMemoryPubSub()
	raterSvc := rater.NewService(books, charges, ps, cfg, log)
	svc := NewService(raterSvc, charges, cfg, log)

	evt := telemetry.NewEvent("api_calls", "cust-1", windowStart.Add(10*time.Minute), nil, "test")
	err = svc.Process(ctx, &telemetry.LateEnvelope{Event: *evt, ReceivedAt: time.Now().UTC(), Watermark: time.Now().UTC()})
	require.NoError(t, err)

	found, err := charges.FindChargesForPeriod(ctx, "cust-1", windowStart.Add(-time.Hour), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 2)

	var delta *charge.RatedCharge
	for _, c := range found {
		if c.ChargeID != priorChargeID {
			delta = c
		}
	}
	require.NotNil(t, delta)
	require.NotNil(t, delta.SupersedesChargeID)
	require.Equal(t, priorChargeID, *delta.SupersedesChargeID)
	require.NotNil(t, delta.ReratingJobID)
	require.True(t, delta.IsDelta())
}
