package cache

import (
	"slices"
	"sync"
)

// AccountLocks serializes work per account. Operations touching several
// accounts acquire their locks in sorted order so two engagements between
// the same pair of accounts cannot deadlock.
type AccountLocks struct {
	m     sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the locks for every distinct non-empty id and returns the release func.
func (a *AccountLocks) Lock(ids ...string) func() {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, id)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		mu := a.get(k)
		mu.Lock()
		held = append(held, mu)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Len returns the number of accounts seen so far.
func (a *AccountLocks) Len() int {
	a.m.Lock()
	defer a.m.Unlock()
	return len(a.locks)
}

func (a *AccountLocks) get(id string) *sync.Mutex {
	a.m.Lock()
	defer a.m.Unlock()
	mu, ok := a.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[id] = mu
	}
	return mu
}

// Claims is a set of keys held by work in progress.
type Claims struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewClaims() *Claims {
	return &Claims{keys: make(map[string]struct{})}
}

// Claim takes key and reports whether it was free.
func (c *Claims) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false
	}
	c.keys[key] = struct{}{}
	return true
}

// Release frees key.
func (c *Claims) Release(key string) {
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
}

// Len returns the number of keys held.
func (c *Claims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
