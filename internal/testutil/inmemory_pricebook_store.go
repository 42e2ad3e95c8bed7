package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/pricebook"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
)

// InMemoryPriceBookStore implements pricebook.Repository for tests.
type InMemoryPriceBookStore struct {
	mu    sync.Mutex
	books map[string]*pricebook.PriceBook
	rules map[string]*pricebook.PriceRule // keyed by priceBookID+":"+metricType
}

func NewInMemoryPriceBookStore() *InMemoryPriceBookStore {
	return &InMemoryPriceBookStore{
		books: make(map[string]*pricebook.PriceBook),
		rules: make(map[string]*pricebook.PriceRule),
	}
}

func (s *InMemoryPriceBookStore) AddBook(b *pricebook.PriceBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.PriceBookID] = b
}

func (s *InMemoryPriceBookStore) AddRule(r *pricebook.PriceRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.PriceBookID+":"+string(r.MetricType)] = r
}

func (s *InMemoryPriceBookStore) FindEffective(ctx context.Context, at time.Time) (*pricebook.PriceBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*pricebook.PriceBook
	for _, b := range s.books {
		if b.Covers(at) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.ErrNoPriceBook
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EffectiveFrom.After(candidates[j].EffectiveFrom)
	})
	return candidates[0], nil
}

func (s *InMemoryPriceBookStore) FindRule(ctx context.Context, priceBookID string, metricType types.MetricType) (*pricebook.PriceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[priceBookID+":"+string(metricType)]
	if !ok {
		return nil, errors.ErrNoPriceRule
	}
	return rule, nil
}

func (s *InMemoryPriceBookStore) GetBook(ctx context.Context, priceBookID string) (*pricebook.PriceBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[priceBookID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return book, nil
}
