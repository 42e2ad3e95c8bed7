package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/charge"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
)

// InMemoryChargeStore implements charge.Repository for tests. Windows is an
// optional reference used to resolve (metricType, windowStart) for a given
// aggregationID in FindLatestForWindow, mirroring the join the real store
// does against aggregated_usage.
type InMemoryChargeStore struct {
	mu      sync.Mutex
	charges map[string]*charge.RatedCharge
	Windows *InMemoryWindowStore
}

func NewInMemoryChargeStore(windows *InMemoryWindowStore) *InMemoryChargeStore {
	return &InMemoryChargeStore{
		charges: make(map[string]*charge.RatedCharge),
		Windows: windows,
	}
}

func (s *InMemoryChargeStore) Insert(ctx context.Context, c *charge.RatedCharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.charges[c.ChargeID] = &cp
	return nil
}

func (s *InMemoryChargeStore) Get(ctx context.Context, chargeID string) (*charge.RatedCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[chargeID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryChargeStore) FindLatestForWindow(ctx context.Context, customerID, metricType string, windowStart time.Time) (*charge.RatedCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*charge.RatedCharge
	for _, c := range s.charges {
		if c.CustomerID != customerID {
			continue
		}
		if !s.matchesWindow(c, metricType, windowStart) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CalculatedAt.After(candidates[j].CalculatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (s *InMemoryChargeStore) matchesWindow(c *charge.RatedCharge, metricType string, windowStart time.Time) bool {
	if s.Windows == nil || c.AggregationID == nil {
		return false
	}
	row, err := s.Windows.Get(context.Background(), *c.AggregationID)
	if err != nil {
		return false
	}
	return string(row.MetricType) == metricType && row.WindowStart.Equal(windowStart)
}

func (s *InMemoryChargeStore) FindChargesForPeriod(ctx context.Context, customerID string, startDate, endDate time.Time) ([]*charge.RatedCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*charge.RatedCharge
	for _, c := range s.charges {
		if c.CustomerID != customerID {
			continue
		}
		if c.CalculatedAt.Before(startDate) || !c.CalculatedAt.Before(endDate) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CalculatedAt.Before(out[j].CalculatedAt)
	})
	return out, nil
}
