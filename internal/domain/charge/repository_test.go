package charge

import (
	"context"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChargeRepo is a minimal Repository backed by a map, just enough to
// drive WalkSupersedesChain.
type fakeChargeRepo struct {
	charges map[string]*RatedCharge
}

func newFakeChargeRepo(charges ...*RatedCharge) *fakeChargeRepo {
	repo := &fakeChargeRepo{charges: make(map[string]*RatedCharge)}
	for _, c := range charges {
		repo.charges[c.ChargeID] = c
	}
	return repo
}

func (r *fakeChargeRepo) Insert(ctx context.Context, c *RatedCharge) error {
	r.charges[c.ChargeID] = c
	return nil
}

func (r *fakeChargeRepo) Get(ctx context.Context, chargeID string) (*RatedCharge, error) {
	c, ok := r.charges[chargeID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return c, nil
}

func (r *fakeChargeRepo) FindLatestForWindow(ctx context.Context, customerID, metricType string, windowStart time.Time) (*RatedCharge, error) {
	return nil, nil
}

func (r *fakeChargeRepo) FindChargesForPeriod(ctx context.Context, customerID string, startDate, endDate time.Time) ([]*RatedCharge, error) {
	return nil, nil
}

func TestWalkSupersedesChain_FollowsLineageToOriginal(t *testing.T) {
	original := &RatedCharge{ChargeID: "c1", Subtotal: decimal.NewFromInt(10)}
	mid := &RatedCharge{ChargeID: "c2", Subtotal: decimal.NewFromInt(2), SupersedesChargeID: strPtr("c1")}
	latest := &RatedCharge{ChargeID: "c3", Subtotal: decimal.NewFromInt(1), SupersedesChargeID: strPtr("c2")}

	repo := newFakeChargeRepo(original, mid, latest)

	chain, err := WalkSupersedesChain(context.Background(), repo, latest)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "c3", chain[0].ChargeID)
	assert.Equal(t, "c2", chain[1].ChargeID)
	assert.Equal(t, "c1", chain[2].ChargeID)
}

func TestWalkSupersedesChain_SingleChargeNoLineage(t *testing.T) {
	original := &RatedCharge{ChargeID: "c1"}
	repo := newFakeChargeRepo(original)

	chain, err := WalkSupersedesChain(context.Background(), repo, original)
	require.NoError(t, err)
	require.Len(t, chain, 1)
}

func TestWalkSupersedesChain_DetectsCycle(t *testing.T) {
	a := &RatedCharge{ChargeID: "a", SupersedesChargeID: strPtr("b")}
	b := &RatedCharge{ChargeID: "b", SupersedesChargeID: strPtr("a")}
	repo := newFakeChargeRepo(a, b)

	_, err := WalkSupersedesChain(context.Background(), repo, a)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidOperation(err))
}

func strPtr(s string) *string { return &s }
