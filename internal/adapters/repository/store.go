// Package repository keeps staged uploads and finished results in bounded
// in-memory stores keyed by opaque ids.
package repository

import (
	"context"
	"sync"

	"github.com/okian/celestial/pkg/metrics"
)

// Store provides id-keyed access to immutable values.
type Store[T any] interface {
	// Put stores v under a fresh id, evicting the oldest entry when full.
	Put(ctx context.Context, v T) (string, error)

	// Get returns the value stored under id.
	// Returns ErrNotFound if the id is unknown or was evicted.
	Get(ctx context.Context, id string) (T, error)

	// Len returns the number of entries held.
	Len() int
}

// node is one entry of the insertion-ordered list (oldest at head).
type node[T any] struct {
	id    string
	value T
	next  *node[T]
}

var _ Store[struct{}] = (*MemoryStore[struct{}])(nil)

// MemoryStore implements Store with a map and a FIFO list. The oldest entry
// is evicted first once capacity is reached.
type MemoryStore[T any] struct {
	name string
	cfg  settings

	mu    sync.RWMutex
	items map[string]*node[T]
	head  *node[T]
	tail  *node[T]
}

// NewMemoryStore creates a store. name labels its metrics.
func NewMemoryStore[T any](name string, opts ...Option) *MemoryStore[T] {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore[T]{
		name:  name,
		cfg:   cfg,
		items: make(map[string]*node[T], cfg.capacity),
	}
}

// Put implements Store.
func (s *MemoryStore[T]) Put(ctx context.Context, v T) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := s.cfg.newID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.items[id]; ok {
		// Reused id: the new value replaces the old one in place.
		old.value = v
		return id, nil
	}
	for len(s.items) >= s.cfg.capacity {
		s.evictOldest()
	}

	n := &node[T]{id: id, value: v}
	if s.tail == nil {
		s.head = n
	} else {
		s.tail.next = n
	}
	s.tail = n
	s.items[id] = n

	metrics.UpdateStoreEntries(s.name, len(s.items))
	return id, nil
}

// evictOldest drops the head of the list. Must be called with s.mu held.
func (s *MemoryStore[T]) evictOldest() {
	n := s.head
	if n == nil {
		return
	}
	s.head = n.next
	if s.head == nil {
		s.tail = nil
	}
	delete(s.items, n.id)
	metrics.RecordStoreEviction(s.name)
}

// Get implements Store.
func (s *MemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	return n.value, nil
}

// Len implements Store.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Capacity returns the maximum number of entries kept.
func (s *MemoryStore[T]) Capacity() int {
	return s.cfg.capacity
}
