// Package guard implements the exclusivity lock that keeps at most one
// mutating ticket active per resource at a time.
package guard

import "context"

// Conflict reports the first resource that blocked an acquisition and the
// ticket currently holding it.
type Conflict struct {
	ResourceID string
	HolderID   string
}

// Guard acquires and releases exclusivity over resources. Acquisition is
// all-or-nothing across the given resource IDs and reentrant for the same
// ticket. Implementations fail closed: on infrastructure errors the caller
// must treat the resources as locked.
type Guard interface {
	// TryAcquire locks every resource for the ticket, or none of them.
	// A nil Conflict with a nil error means the lock is held.
	TryAcquire(ctx context.Context, ticketID string, resourceIDs []string) (*Conflict, error)

	// Release unlocks the resources held by the ticket. Resources held by
	// another ticket are left untouched.
	Release(ctx context.Context, ticketID string, resourceIDs []string) error

	// Holder returns the ticket holding a resource, or "" when unlocked.
	Holder(ctx context.Context, resourceID string) (string, error)
}
