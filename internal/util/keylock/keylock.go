// Package keylock provides per-key mutual exclusion whose acquisition honours context
// cancellation.
//
// Locks for different keys never block each other. Entries are reference counted and
// removed once nobody holds or waits for them, so the map stays proportional to the
// number of keys in use.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Map hands out one lock per key.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// New returns an empty lock map.
func New[K comparable]() *Map[K] {
	return &Map[K]{locks: make(map[K]*entry)}
}

// Lock blocks until key is held or ctx is done. On success the returned func releases
// the lock and must be called exactly once.
func (m *Map[K]) Lock(ctx context.Context, key K) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.release(key, e, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, e, true) })
	}, nil
}

func (m *Map[K]) release(key K, e *entry, held bool) {
	if held {
		e.sem.Release(1)
	}
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
