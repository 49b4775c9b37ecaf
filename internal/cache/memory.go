package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process KV used by tests. Clock is swappable so TTL
// behavior can be exercised without sleeping.
type Memory struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	Clock func() time.Time
}

type memoryEntry struct {
	value string
	exp   time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data:  make(map[string]memoryEntry),
		Clock: time.Now,
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = m.Clock().Add(ttl)
	}
	m.data[key] = memoryEntry{value: value, exp: exp}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.exp.IsZero() && m.Clock().After(e.exp) {
		delete(m.data, key)
		return "", ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
