package mutex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRWMutex_SameKeySerializes(t *testing.T) {
	var m KeyedRWMutex[string]
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("k")
			defer m.Unlock("k")

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Zero(t, m.Len())
}

func TestKeyedRWMutex_DifferentKeysIndependent(t *testing.T) {
	var m KeyedRWMutex[string]
	m.Lock("a")

	done := make(chan struct{})
	go func() {
		m.Lock("b")
		m.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	m.Unlock("a")
}

func TestKeyedRWMutex_WriterWaitsForReaders(t *testing.T) {
	var m KeyedRWMutex[int]
	m.RLock(1)
	m.RLock(1)
	assert.Equal(t, 1, m.Len())

	locked := make(chan struct{})
	go func() {
		m.Lock(1)
		close(locked)
		m.Unlock(1)
	}()

	select {
	case <-locked:
		t.Fatal("writer entered while readers hold the key")
	case <-time.After(20 * time.Millisecond):
	}

	m.RUnlock(1)
	m.RUnlock(1)
	<-locked
}

func TestKeyedRWMutex_UnlockWithoutLock(t *testing.T) {
	var m KeyedRWMutex[string]
	assert.Panics(t, func() { m.Unlock("x") })
}
