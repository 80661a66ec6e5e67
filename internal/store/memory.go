package store

import (
	"slices"
	"strings"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Readings are keyed by sensor ID, with new readings replacing previous
// values. Subscribers receive updates via buffered channels; updates are sent
// non-blocking and dropped for a subscriber whose buffer is full.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string]Reading
	health   Health

	subMu       sync.RWMutex
	subscribers map[chan Reading]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings:    make(map[string]Reading),
		subscribers: make(map[chan Reading]struct{}),
	}
}

// Update stores a [Reading] and notifies all subscribers.
func (m *MemoryStore) Update(r Reading) {
	m.mu.Lock()
	m.readings[r.ID] = r
	m.mu.Unlock()

	m.notifySubscribers(r)
}

// GetAll returns a snapshot of all readings ordered by ID.
func (m *MemoryStore) GetAll() []Reading {
	m.mu.RLock()
	results := make([]Reading, 0, len(m.readings))
	for _, r := range m.readings {
		results = append(results, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b Reading) int {
		return strings.Compare(a.ID, b.ID)
	})
	return results
}

// SetHealth replaces the health snapshot.
func (m *MemoryStore) SetHealth(h Health) {
	m.mu.Lock()
	m.health = h
	m.mu.Unlock()
}

// Health returns the latest health snapshot. Before the first SetHealth it
// reports an active, disconnected bridge with no endpoints.
func (m *MemoryStore) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.health
	if h.State == "" {
		h.State = "active"
	}
	if h.Endpoints == nil {
		h.Endpoints = []EndpointStatus{}
	}
	return h
}

// Subscribe creates a new subscription.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Reading {
	ch := make(chan Reading, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Reading) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends r to every subscriber without blocking.
func (m *MemoryStore) notifySubscribers(r Reading) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- r:
		default:
			// slow subscriber, drop
		}
	}
}
