package counter

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryFallback is a PostgresFallback stand-in for tests that
// don't want a live database, tracking totals in a plain map.
type InMemoryFallback struct {
	mu     sync.Mutex
	totals map[uuid.UUID]int
}

func NewInMemoryFallback() *InMemoryFallback {
	return &InMemoryFallback{totals: make(map[uuid.UUID]int)}
}

func (f *InMemoryFallback) AdjustTotalBookings(_ context.Context, sessionID uuid.UUID, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.totals[sessionID] + delta
	if next < 0 {
		return 0, ErrWouldGoNegative
	}
	f.totals[sessionID] = next
	return next, nil
}
