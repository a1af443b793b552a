package event

import "context"

// Store persists and retrieves audit events.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for an aggregate, oldest first.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns the most recent events of a type, newest first.
	// A limit of zero or less returns all of them.
	LoadByType(ctx context.Context, eventType Type, limit int) ([]Event, error)
}
