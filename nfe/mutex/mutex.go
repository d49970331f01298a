// Package mutex provides a lock per key. Entries live only while someone
// holds or waits for them.
package mutex

import "sync"

type rwentry struct {
	mu   sync.RWMutex
	refs int
}

type KeyedRWMutex[K comparable] struct {
	mu    sync.Mutex
	table map[K]*rwentry
}

// acquire takes a reference that is released by the matching unlock, so an
// entry is never dropped while it is held.
func (m *KeyedRWMutex[K]) acquire(key K) *rwentry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.table == nil {
		m.table = make(map[K]*rwentry)
	}
	e, ok := m.table[key]
	if !ok {
		e = &rwentry{}
		m.table[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedRWMutex[K]) release(key K) *rwentry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.table[key]
	if !ok {
		panic("mutex: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(m.table, key)
	}
	return e
}

func (m *KeyedRWMutex[K]) Lock(key K)    { m.acquire(key).mu.Lock() }
func (m *KeyedRWMutex[K]) Unlock(key K)  { m.release(key).mu.Unlock() }
func (m *KeyedRWMutex[K]) RLock(key K)   { m.acquire(key).mu.RLock() }
func (m *KeyedRWMutex[K]) RUnlock(key K) { m.release(key).mu.RUnlock() }

// Len is the number of keys currently held or waited for.
func (m *KeyedRWMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}
