package event

import "context"

// Store is the audit log. Events are appended inside the transaction of the
// operation they record.
type Store interface {
	// Append assigns IDs and timestamps and persists events.
	Append(ctx context.Context, events ...Event) error
	// Load returns a period's events, oldest first.
	Load(ctx context.Context, periodID string) ([]Event, error)
}
