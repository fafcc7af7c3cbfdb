package lockmgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryManager is a Manager backed by an in-process mutex map, for
// unit and race tests that don't want a live Redis instance. It
// preserves the same blocking/TryAcquire/token semantics as
// RedisManager so coordinator tests exercise real contention.
type InMemoryManager struct {
	mu    sync.Mutex
	held  map[string]string // name -> token
	until map[string]time.Time
}

// NewInMemoryManager builds an empty InMemoryManager.
func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		held:  make(map[string]string),
		until: make(map[string]time.Time),
	}
}

func (m *InMemoryManager) tryAcquireLocked(name string, ttl time.Duration) (*Lease, bool) {
	now := time.Now()
	if expiry, ok := m.until[name]; ok && now.Before(expiry) {
		return nil, false
	}
	token := uuid.NewString()
	m.held[name] = token
	m.until[name] = now.Add(ttl)
	return &Lease{key: name, token: token, acquiredAt: now, ttl: ttl}, true
}

func (m *InMemoryManager) TryAcquire(_ context.Context, name string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lease, ok := m.tryAcquireLocked(name, ttl)
	if !ok {
		return nil, ErrNotAcquired
	}
	return lease, nil
}

func (m *InMemoryManager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if lease, err := m.TryAcquire(ctx, name, ttl); err == nil {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *InMemoryManager) Release(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[lease.key] != lease.token {
		return ErrLeaseExpired
	}
	delete(m.held, lease.key)
	delete(m.until, lease.key)
	return nil
}

func (m *InMemoryManager) Extend(_ context.Context, lease *Lease, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[lease.key] != lease.token {
		return ErrLeaseExpired
	}
	m.until[lease.key] = time.Now().Add(ttl)
	return nil
}
