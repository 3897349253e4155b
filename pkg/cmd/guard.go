package cmd

import (
	"fmt"

	"github.com/dbmesh/ticketflow/pkg/guard"
)

// NewGuard returns a redis-backed guard when a URL is given, otherwise an
// in-process one. Multi-instance deployments need redis; the memory guard
// only serializes tickets within a single process.
func NewGuard(redisURL string) guard.Guard {
	if redisURL == "" {
		return guard.NewMemoryGuard()
	}

	g, err := guard.NewRedisGuardFromURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create redis guard: %w", err))
	}

	return g
}
