package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same TTL semantics as the Redis
// adapter. It backs tests and dependency-free local runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
	lists  map[string]*memoryList

	// now is swappable in tests.
	now func() time.Time
}

type memoryValue struct {
	data      string
	expiresAt time.Time
}

type memoryList struct {
	items     []string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryValue),
		lists:  make(map[string]*memoryList),
		now:    time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	if !v.expiresAt.IsZero() && !m.now().Before(v.expiresAt) {
		delete(m.values, key)
		return "", false, nil
	}
	return v.data, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.values[key] = memoryValue{data: value, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.values, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *MemoryStore) ListPush(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.liveList(key)
	if l == nil {
		l = &memoryList{}
		m.lists[key] = l
	}
	l.items = append([]string{value}, l.items...)
	if ttl > 0 {
		l.expiresAt = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.liveList(key)
	if l == nil {
		return nil, nil
	}
	n := int64(len(l.items))
	start, stop = clampRange(start, stop, n)
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out, nil
}

func (m *MemoryStore) ListTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.liveList(key)
	if l == nil {
		return nil
	}
	n := int64(len(l.items))
	start, stop = clampRange(start, stop, n)
	if start > stop {
		l.items = nil
		return nil
	}
	l.items = l.items[start : stop+1]
	return nil
}

// liveList returns the list at key, evicting it first if expired.
// Callers must hold mu.
func (m *MemoryStore) liveList(key string) *memoryList {
	l, ok := m.lists[key]
	if !ok {
		return nil
	}
	if !l.expiresAt.IsZero() && !m.now().Before(l.expiresAt) {
		delete(m.lists, key)
		return nil
	}
	return l
}

// clampRange normalizes Redis-style negative indices against length n.
func clampRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
