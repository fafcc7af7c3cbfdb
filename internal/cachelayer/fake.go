package cachelayer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"
)

// InMemoryCache is a single-process Cache used in tests and permitted
// by the design notes only for single-instance deployments.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]inMemoryEntry)}
}

func (c *InMemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = inMemoryEntry{raw: raw, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *InMemoryCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if matched, _ := filepath.Match(pattern, key); matched {
			delete(c.entries, key)
		}
	}
	return nil
}
