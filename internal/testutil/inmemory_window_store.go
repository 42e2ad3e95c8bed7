package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
)

// InMemoryWindowStore implements usage.WindowStore for tests.
type InMemoryWindowStore struct {
	mu   sync.Mutex
	rows map[string]*usage.AggregatedUsage // keyed by aggregationID
}

func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{rows: make(map[string]*usage.AggregatedUsage)}
}

func openKey(key usage.WindowKey) string {
	return key.CustomerID + "|" + string(key.MetricType) + "|" + key.WindowStart.String()
}

func (s *InMemoryWindowStore) GetOrCreate(ctx context.Context, key usage.WindowKey, seed usage.SeedFactory) (*usage.AggregatedUsage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if !row.IsFinal && row.ReratingJobID == nil &&
			row.CustomerID == key.CustomerID && row.MetricType == key.MetricType && row.WindowStart.Equal(key.WindowStart) {
			cp := *row
			return &cp, false, nil
		}
	}

	row := seed()
	s.rows[row.AggregationID] = row
	cp := *row
	return &cp, true, nil
}

func (s *InMemoryWindowStore) Update(ctx context.Context, row *usage.AggregatedUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rows[row.AggregationID]
	if !ok {
		return errors.ErrNotFound
	}
	if existing.Version != row.Version-1 {
		return errors.ErrStorageConflict
	}
	cp := *row
	s.rows[row.AggregationID] = &cp
	return nil
}

func (s *InMemoryWindowStore) ListExpired(ctx context.Context, watermark time.Time) ([]*usage.AggregatedUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*usage.AggregatedUsage
	for _, row := range s.rows {
		if !row.IsFinal && !row.WindowEnd.After(watermark) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryWindowStore) Finalize(ctx context.Context, row *usage.AggregatedUsage) error {
	return s.Update(ctx, row)
}

func (s *InMemoryWindowStore) Get(ctx context.Context, aggregationID string) (*usage.AggregatedUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[aggregationID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}
