// Package memstore is a copy-on-write, ordered, in-memory collection used
// by the memory-backed repositories. Writers publish a new slice; readers
// get a snapshot that never changes underneath them.
package memstore

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Collection stores items of type T keyed by the string returned from key.
// Insertion order is preserved.
type Collection[T any] struct {
	key  func(T) string
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[[]T]
}

func New[T any](key func(T) string) *Collection[T] {
	c := &Collection[T]{key: key}
	empty := []T{}
	c.snap.Store(&empty)
	return c
}

// All returns the current snapshot. Callers must not modify it.
func (c *Collection[T]) All() []T {
	return *c.snap.Load()
}

func (c *Collection[T]) Len() int {
	return len(c.All())
}

func (c *Collection[T]) Get(id string) (T, error) {
	for _, item := range c.All() {
		if c.key(item) == id {
			return item, nil
		}
	}
	var zero T
	return zero, ErrNotFound
}

// Insert appends item. It fails with ErrExists on a duplicate key.
func (c *Collection[T]) Insert(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.All()
	id := c.key(item)
	for _, existing := range cur {
		if c.key(existing) == id {
			return ErrExists
		}
	}
	next := make([]T, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, item)
	c.snap.Store(&next)
	return nil
}

// Replace swaps the item with the same key, keeping its position.
func (c *Collection[T]) Replace(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.All()
	id := c.key(item)
	for i, existing := range cur {
		if c.key(existing) == id {
			next := make([]T, len(cur))
			copy(next, cur)
			next[i] = item
			c.snap.Store(&next)
			return nil
		}
	}
	return ErrNotFound
}

// Remove deletes the item with key id and returns it.
func (c *Collection[T]) Remove(id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.All()
	for i, existing := range cur {
		if c.key(existing) == id {
			next := make([]T, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			c.snap.Store(&next)
			return existing, nil
		}
	}
	var zero T
	return zero, ErrNotFound
}

// Update replaces the item with key id by fn's result while holding the
// writer lock, so concurrent updates of the same item serialize. fn must
// not change the key. An error from fn leaves the collection untouched.
func (c *Collection[T]) Update(id string, fn func(T) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	cur := c.All()
	for i, existing := range cur {
		if c.key(existing) != id {
			continue
		}
		updated, err := fn(existing)
		if err != nil {
			return zero, err
		}
		if c.key(updated) != id {
			return zero, errors.New("update changed item key")
		}
		next := make([]T, len(cur))
		copy(next, cur)
		next[i] = updated
		c.snap.Store(&next)
		return updated, nil
	}
	return zero, ErrNotFound
}

// Filter returns the items of the current snapshot accepted by keep.
func (c *Collection[T]) Filter(keep func(T) bool) []T {
	var out []T
	for _, item := range c.All() {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
