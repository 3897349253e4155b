package guard

import (
	"context"
	"sync"
)

// MemoryGuard keeps locks in process memory. Suitable for tests and
// single-node deployments.
type MemoryGuard struct {
	mu      sync.Mutex
	holders map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		holders: make(map[string]string),
	}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, ticketID string, resourceIDs []string) (*Conflict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, resourceID := range resourceIDs {
		holder, held := g.holders[resourceID]
		if held && holder != ticketID {
			return &Conflict{ResourceID: resourceID, HolderID: holder}, nil
		}
	}

	for _, resourceID := range resourceIDs {
		g.holders[resourceID] = ticketID
	}

	return nil, nil
}

func (g *MemoryGuard) Release(_ context.Context, ticketID string, resourceIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, resourceID := range resourceIDs {
		if g.holders[resourceID] == ticketID {
			delete(g.holders, resourceID)
		}
	}

	return nil
}

func (g *MemoryGuard) Holder(_ context.Context, resourceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.holders[resourceID], nil
}
