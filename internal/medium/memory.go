package medium

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Medium. It is used by tests, the scenario
// harness and the "memory" storage driver.
//
// A positive capacity bounds the total bytes of keys plus values, which
// emulates the fixed quota of browser-style local storage.
type Memory struct {
	mu       sync.Mutex
	data     map[string]string
	used     int64
	capacity int64
}

// Compile-time contract assertions.
var (
	_ Medium  = (*Memory)(nil)
	_ Swapper = (*Memory)(nil)
)

// NewMemory creates an unbounded in-memory medium.
func NewMemory() *Memory {
	return NewMemoryWithCapacity(0)
}

// NewMemoryWithCapacity creates an in-memory medium holding at most
// capacity bytes. Zero or negative means unbounded.
func NewMemoryWithCapacity(capacity int64) *Memory {
	return &Memory{
		data:     make(map[string]string),
		capacity: capacity,
	}
}

// Get implements Medium.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Medium.
func (m *Memory) Set(_ context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setLocked(key, val)
}

func (m *Memory) setLocked(key, val string) error {
	delta := int64(len(key) + len(val))
	if old, ok := m.data[key]; ok {
		delta -= int64(len(key) + len(old))
	}
	if m.capacity > 0 && m.used+delta > m.capacity {
		return fmt.Errorf("set %q (%d bytes, %d/%d used): %w", key, len(val), m.used, m.capacity, ErrQuotaExceeded)
	}
	m.data[key] = val
	m.used += delta
	return nil
}

// Remove implements Medium.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.data, key)
	}
	return nil
}

// Keys implements Medium.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// CompareAndSwap implements Swapper.
func (m *Memory) CompareAndSwap(_ context.Context, key, old string, oldExists bool, val string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[key]
	if ok != oldExists || (ok && cur != old) {
		return false, nil
	}
	if err := m.setLocked(key, val); err != nil {
		return false, err
	}
	return true, nil
}

// Used returns the number of bytes currently stored.
func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
