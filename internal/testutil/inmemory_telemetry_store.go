package testutil

import (
	"context"
	"sync"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
)

// InMemoryTelemetryStore implements telemetry.Repository for tests.
type InMemoryTelemetryStore struct {
	mu     sync.Mutex
	events map[string]*telemetry.Event
}

func NewInMemoryTelemetryStore() *InMemoryTelemetryStore {
	return &InMemoryTelemetryStore{events: make(map[string]*telemetry.Event)}
}

func (s *InMemoryTelemetryStore) Insert(ctx context.Context, event *telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.EventID]; ok {
		return errors.ErrDuplicateEvent
	}
	cp := *event
	s.events[event.EventID] = &cp
	return nil
}

func (s *InMemoryTelemetryStore) Exists(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.events[eventID]
	return ok, nil
}

func (s *InMemoryTelemetryStore) Get(ctx context.Context, eventID string) (*telemetry.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *event
	return &cp, nil
}
