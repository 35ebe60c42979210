// Package cache holds the key/value caches used to serve repeated read queries.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key; a zero ttl never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr atomically increments an integer counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// minSweepSize is the entry count at which Set first purges expired entries.
const minSweepSize = 64

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process Cache, used when no Redis address is configured.
type MemoryCache struct {
	mu       sync.Mutex
	data     map[string]memoryEntry
	counters map[string]int64
	now      func() time.Time
	sweepAt  int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data:     make(map[string]memoryEntry),
		counters: make(map[string]int64),
		now:      time.Now,
		sweepAt:  minSweepSize,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.counters[key]; ok {
		return formatInt(n), true, nil
	}
	e, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.data) >= m.sweepAt {
		m.purgeExpired(now)
		m.sweepAt = max(minSweepSize, 2*len(m.data))
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.data[key] = e
	return nil
}

// purgeExpired drops entries nobody will read again. Callers hold mu.
func (m *MemoryCache) purgeExpired(now time.Time) {
	for key, e := range m.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.data, key)
		}
	}
}

func (m *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key]++
	return m.counters[key], nil
}

// Len reports the number of stored value entries, including expired ones
// not yet swept.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
