package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocks_DedupAndEmpty(t *testing.T) {
	l := NewAccountLocks()

	unlock := l.Lock("b", "a", "b", "")
	assert.Equal(t, 2, l.Len())
	unlock()

	// reacquire proves the duplicate id did not self-deadlock and all were released
	done := make(chan struct{})
	go func() {
		l.Lock("a", "b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks not released")
	}
}

func TestAccountLocks_Exclusive(t *testing.T) {
	l := NewAccountLocks()
	var inside atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"attacker", "defender"}
			if i%2 == 0 {
				ids = []string{"defender", "attacker"}
			}
			unlock := l.Lock(ids...)
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			inside.Add(-1)
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestAccountLocks_IndependentAccounts(t *testing.T) {
	l := NewAccountLocks()
	unlock := l.Lock("a")
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated account blocked")
	}
}

// SafeCounter tests

func TestSafeCounter_InitialValue(t *testing.T) {
	c := &SafeCounter{}
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Set(t *testing.T) {
	c := &SafeCounter{}

	c.Set(42)
	assert.Equal(t, int(42), c.Value())

	c.Set(100)
	assert.Equal(t, int(100), c.Value())

	c.Set(0)
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Inc(t *testing.T) {
	c := &SafeCounter{}

	c.Inc()
	assert.Equal(t, int(1), c.Value())

	c.Inc()
	c.Inc()
	assert.Equal(t, int(3), c.Value())
}

func TestSafeCounter_Concurrent(t *testing.T) {
	c := &SafeCounter{}
	var wg sync.WaitGroup

	// Concurrent increments
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, int(1000), c.Value())
}
