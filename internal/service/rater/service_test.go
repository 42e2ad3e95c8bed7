package rater

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/pricebook"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/testutil"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func upTo(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestComputeFlat(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingFlat,
		Tiers:        []pricebook.PriceTier{{Tier: 1, UnitPrice: dec("49.99")}},
	}

	subtotal, unitPrice, _, err := Compute(rule, dec("1"), time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, dec("49.99").Equal(subtotal))
	assert.True(t, dec("49.99").Equal(unitPrice))
}

func TestComputePerUnit(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingPerUnit,
		Tiers:        []pricebook.PriceTier{{Tier: 1, UnitPrice: dec("0.001")}},
	}

	subtotal, unitPrice, _, err := Compute(rule, dec("10000"), time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, dec("10.00").Equal(subtotal))
	assert.True(t, dec("0.001000").Equal(unitPrice))
}

// TestComputeTiered mirrors the graduated-pricing scenario: 1000 units at
// 0.10, then 200 more at 0.05 once past the 1000-unit boundary.
func TestComputeTiered(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingTiered,
		Tiers: []pricebook.PriceTier{
			{Tier: 1, UpTo: upTo("1000"), UnitPrice: dec("0.10")},
			{Tier: 2, UpTo: nil, UnitPrice: dec("0.05")},
		},
	}

	subtotal, _, metadata, err := Compute(rule, dec("1200"), time.Now(), []string{"evt-1"})
	require.NoError(t, err)
	assert.True(t, dec("110.00").Equal(subtotal), "got %s", subtotal)
	require.Len(t, metadata.TiersApplied, 2)
	assert.True(t, dec("1000").Equal(metadata.TiersApplied[0].Quantity))
	assert.True(t, dec("200").Equal(metadata.TiersApplied[1].Quantity))
}

// TestComputeVolume mirrors the volume-pricing scenario: the whole quantity
// bills at the single tier that covers it.
func TestComputeVolume(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingVolume,
		Tiers: []pricebook.PriceTier{
			{Tier: 1, UpTo: upTo("1000"), UnitPrice: dec("0.10")},
			{Tier: 2, UpTo: nil, UnitPrice: dec("0.08")},
		},
	}

	subtotal, unitPrice, _, err := Compute(rule, dec("5000"), time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, dec("400.00").Equal(subtotal), "got %s", subtotal)
	assert.True(t, dec("0.080000").Equal(unitPrice))
}

// TestComputeVolume_SmallQuantityPicksLowerTier ensures a quantity within
// the first tier's boundary doesn't fall through to the unbounded tier.
func TestComputeVolume_SmallQuantityPicksLowerTier(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingVolume,
		Tiers: []pricebook.PriceTier{
			{Tier: 1, UpTo: upTo("1000"), UnitPrice: dec("0.10")},
			{Tier: 2, UpTo: nil, UnitPrice: dec("0.08")},
		},
	}

	subtotal, unitPrice, _, err := Compute(rule, dec("500"), time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, dec("50.00").Equal(subtotal))
	assert.True(t, dec("0.100000").Equal(unitPrice))
}

func TestCompute_UnknownPricingModel(t *testing.T) {
	rule := &pricebook.PriceRule{PricingModel: pricebook.PricingModel("bogus")}
	_, _, _, err := Compute(rule, dec("1"), time.Now(), nil)
	assert.Error(t, err)
}

// TestTieredMonotonicity checks the law that a larger quantity never
// produces a smaller subtotal under the same tiered rule.
func TestTieredMonotonicity(t *testing.T) {
	rule := &pricebook.PriceRule{
		PricingModel: pricebook.PricingTiered,
		Tiers: []pricebook.PriceTier{
			{Tier: 1, UpTo: upTo("100"), UnitPrice: dec("1.00")},
			{Tier: 2, UpTo: nil, UnitPrice: dec("0.50")},
		},
	}

	quantities := []string{"10", "50", "100", "150", "1000"}
	var prev decimal.Decimal
	for i, q := range quantities {
		subtotal, _, _, err := Compute(rule, dec(q), time.Now(), nil)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, subtotal.GreaterThanOrEqual(prev), "subtotal decreased at quantity %s", q)
		}
		prev = subtotal
	}
}

func TestHandleMessage_RatesFinalizedAggregate(t *testing.T) {
	cfg := config.GetDefaultConfig()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	books := testutil.NewInMemoryPriceBookStore()
	windowStart := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	books.AddBook(&pricebook.PriceBook{PriceBookID: "book-1", Version: 1, EffectiveFrom: windowStart.Add(-time.Hour), Currency: "USD"})
	books.AddRule(&pricebook.PriceRule{
		RuleID:       "rule-1",
		PriceBookID:  "book-1",
		MetricType:   types.MetricAPICalls,
		PricingModel: pricebook.PricingPerUnit,
		Tiers:        []pricebook.PriceTier{{Tier: 1, UnitPrice: dec("0.01")}},
	})
	charges := testutil.NewInMemoryChargeStore(testutil.NewInMemoryWindowStore())
	ps := testutil.NewInMemoryPubSub()
	svc := NewService(books, charges, ps, cfg, log)

	payload, err := json.Marshal(finalizedAggregate{
		AggregationID: "agg-1",
		CustomerID:    "cust-1",
		MetricType:    string(types.MetricAPICalls),
		WindowStart:   windowStart,
		Value:         "250",
		EventIDs:      []string{"evt-1", "evt-2"},
		IsFinal:       true,
	})
	require.NoError(t, err)
	msg := message.NewMessage(uuid.New().String(), payload)

	require.NoError(t, svc.HandleMessage(msg))

	found, err := charges.FindChargesForPeriod(context.Background(), "cust-1", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, dec("2.50").Equal(found[0].Subtotal))
	assert.Equal(t, "agg-1", *found[0].AggregationID)
}

func TestHandleMessage_SkipsNonFinalAggregate(t *testing.T) {
	cfg := config.GetDefaultConfig()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	books := testutil.NewInMemoryPriceBookStore()
	charges := testutil.NewInMemoryChargeStore(testutil.NewInMemoryWindowStore())
	ps := testutil.NewInMemoryPubSub()
	svc := NewService(books, charges, ps, cfg, log)

	payload, err := json.Marshal(finalizedAggregate{AggregationID: "agg-1", IsFinal: false})
	require.NoError(t, err)
	msg := message.NewMessage(uuid.New().String(), payload)

	require.NoError(t, svc.HandleMessage(msg))

	found, err := charges.FindChargesForPeriod(context.Background(), "cust-1", time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, found)
}
