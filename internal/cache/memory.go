package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryProvider is a process-local Provider with per-key expiry.
type MemoryProvider struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryProvider returns an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]entry), now: time.Now}
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (m *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return nil, ErrCacheMiss
	}
	return slices.Clone(e.value), nil
}

// Set stores value; ttl <= 0 never expires.
func (m *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = m.entryFor(value, ttl)
	return nil
}

// SetNX stores value when key is absent or expired.
func (m *MemoryProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.data[key] = m.entryFor(value, ttl)
	return true, nil
}

// Del removes key.
func (m *MemoryProvider) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops all entries.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]entry)
	return nil
}

func (m *MemoryProvider) entryFor(value []byte, ttl time.Duration) entry {
	e := entry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
