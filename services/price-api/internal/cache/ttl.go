// Package cache holds the single-slot TTL caches that sit in front of each
// upstream pipeline.
package cache

import (
	"sync"
	"time"
)

type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "empty"
	}
}

type Entry[T any] struct {
	Data      T
	Timestamp time.Time
}

// Cache holds at most one entry. An entry is served by Get while
// now - Timestamp < ttl and is replaced whole by Set.
type Cache[T any] struct {
	mu    sync.RWMutex
	entry *Entry[T]
	ttl   time.Duration
	clock Clock
}

func New[T any](ttl time.Duration, clock Clock) *Cache[T] {
	if clock == nil {
		clock = SystemClock{}
	}

	return &Cache[T]{
		ttl:   ttl,
		clock: clock,
	}
}

func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry only while it is fresh.
func (c *Cache[T]) Get() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil || !c.freshLocked() {
		return Entry[T]{}, false
	}
	return *c.entry, true
}

// Peek returns the entry regardless of its age.
func (c *Cache[T]) Peek() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil {
		return Entry[T]{}, false
	}
	return *c.entry, true
}

// Set stores data stamped with the current time and returns the new entry.
func (c *Cache[T]) Set(data T) Entry[T] {
	entry := &Entry[T]{Data: data, Timestamp: c.clock.Now()}

	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()

	return *entry
}

func (c *Cache[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.entry == nil:
		return StateEmpty
	case c.freshLocked():
		return StateFresh
	default:
		return StateStale
	}
}

func (c *Cache[T]) freshLocked() bool {
	return c.clock.Now().Sub(c.entry.Timestamp) < c.ttl
}
