package telemetry

import "context"

// Repository persists raw telemetry events. Insert must be atomic with
// respect to concurrent ingests of the same EventID — a unique constraint
// on storage is sufficient; implementations translate the resulting
// constraint violation into errors.ErrDuplicateEvent.
type Repository interface {
	// Insert writes a new event. Returns errors.ErrDuplicateEvent if
	// EventID already exists.
	Insert(ctx context.Context, event *Event) error

	// Exists reports whether an event with this id has already been
	// persisted.
	Exists(ctx context.Context, eventID string) (bool, error)

	// Get retrieves a single event by id.
	Get(ctx context.Context, eventID string) (*Event, error)
}
