package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store used by tests and one-shot CLI runs.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memEntry
	lists map[string][]string
	now   func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memEntry),
		lists: make(map[string][]string),
		now:   time.Now,
	}
}

// SetClock overrides the time source used for expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(m.now()) {
		delete(m.items, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = m.entry(value, ttl)
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, keys []string, value string, ttl time.Duration) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]bool, len(keys))
	for i, key := range keys {
		if e, ok := m.items[key]; ok && !e.expired(now) {
			continue
		}
		m.items[key] = m.entry(value, ttl)
		out[i] = true
	}
	return out, nil
}

func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryStore) LPush(_ context.Context, key string, values ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	head := make([]string, 0, len(values)+len(list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	m.lists[key] = append(head, list...)
	return len(m.lists[key]), nil
}

func (m *MemoryStore) LTrim(_ context.Context, key string, start, stop int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, len(list))
	if !ok {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), list[lo:hi]...)
	return nil
}

func (m *MemoryStore) LRange(_ context.Context, key string, start, stop int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, len(list))
	if !ok {
		return nil, nil
	}
	return append([]string(nil), list[lo:hi]...), nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) entry(value string, ttl time.Duration) memEntry {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
