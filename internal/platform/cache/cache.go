// Package cache provides the read-through cache used in front of single-record
// reads. Entries are keyed by record identifier and dropped on write.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a keyed store consulted before storage on read.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Put(ctx context.Context, key K, value V)
	Invalidate(ctx context.Context, key K)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

// Memory is a thread-safe in-memory Cache with lazy expiration. When
// maxEntries is reached the oldest entry is evicted.
type Memory[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]*entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory creates a Memory cache. maxEntries <= 0 means unbounded.
func NewMemory[K comparable, V any](ttl time.Duration, maxEntries int) *Memory[K, V] {
	return &Memory[K, V]{
		entries:    make(map[K]*entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key. Expired entries are deleted and reported as a miss.
func (m *Memory[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (m *Memory[K, V]) Put(_ context.Context, key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = &entry[V]{value: value, expiresAt: now.Add(m.ttl), storedAt: now}
}

func (m *Memory[K, V]) Invalidate(_ context.Context, key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet collected.
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictLocked drops expired entries; if none expired, it drops the oldest one.
func (m *Memory[K, V]) evictLocked(now time.Time) {
	var (
		oldestKey K
		oldestAt  time.Time
		found     bool
		removed   bool
	)
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			removed = true
			continue
		}
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if !removed && found {
		delete(m.entries, oldestKey)
	}
}

// Noop never stores anything. Used when caching is disabled.
type Noop[K comparable, V any] struct{}

func (Noop[K, V]) Get(context.Context, K) (V, bool) {
	var zero V
	return zero, false
}

func (Noop[K, V]) Put(context.Context, K, V) {}

func (Noop[K, V]) Invalidate(context.Context, K) {}
