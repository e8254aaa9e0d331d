package scope

import (
	"sort"
	"sync"
)

// Manager is a generic thread-safe store of per-scope objects.
type Manager[T any] struct {
	items map[string]T
	mu    sync.RWMutex
}

// Add stores an item for the given scope, replacing any previous one.
func (m *Manager[T]) Add(name string, item T) {
	m.mu.Lock()
	if m.items == nil {
		m.items = make(map[string]T)
	}
	m.items[name] = item
	m.mu.Unlock()
}

// GetOrCreate returns the item for name, creating it with create when absent.
// The second result reports whether the item was created.
func (m *Manager[T]) GetOrCreate(name string, create func() T) (T, bool) {
	m.mu.RLock()
	v, ok := m.items[name]
	m.mu.RUnlock()
	if ok {
		return v, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[name]; ok {
		return v, false
	}
	if m.items == nil {
		m.items = make(map[string]T)
	}
	v = create()
	m.items[name] = v
	return v, true
}

// Get retrieves the item for the given scope.
func (m *Manager[T]) Get(name string) (_ T, ok bool) {
	m.mu.RLock()
	v, ok := m.items[name]
	m.mu.RUnlock()
	return v, ok
}

// Remove deletes and returns the item for name.
func (m *Manager[T]) Remove(name string) (_ T, ok bool) {
	m.mu.Lock()
	v, ok := m.items[name]
	delete(m.items, name)
	m.mu.Unlock()
	return v, ok
}

// Names returns the stored scope names in sorted order.
func (m *Manager[T]) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.items))
	for name := range m.items {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Range iterates over all items. Return false from fn to stop early.
func (m *Manager[T]) Range(fn func(name string, item T) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, item := range m.items {
		if !fn(name, item) {
			break
		}
	}
}

// Len returns the number of stored items.
func (m *Manager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Clear removes all stored items.
func (m *Manager[T]) Clear() {
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
}

// CollectStats gathers a stats snapshot from every item.
func CollectStats[T any, S any](m *Manager[T], fn func(T) S) map[string]S {
	out := make(map[string]S, m.Len())
	m.Range(func(name string, item T) bool {
		out[name] = fn(item)
		return true
	})
	return out
}
