// Package pairlock serializes match-pair mutations inside one process.
// Store reads and writes around a match creation are not atomic, so the
// check-then-create sequence runs under a mutex keyed by the canonical
// pair id.
package pairlock

import "sync"

type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Keyed {
	return &Keyed{locks: make(map[string]*entry)}
}

// Key builds the lock key for a user pair, order-insensitive.
func Key(x, y string) string {
	if x < y {
		return x + "|" + y
	}
	return y + "|" + x
}

// Lock blocks until the pair key is held and returns the unlock func.
// Entries are reference-counted so the map does not grow with every pair
// ever seen.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
