// Package queue holds records waiting for a batched write. Each record has a
// key, and a key stays reserved from Push until its batch is confirmed with
// Done, so a duplicate can be refused while the original is still in flight.
package queue

import "sync"

// Keyed is a thread-safe FIFO of records with unique keys.
type Keyed[K comparable, T any] struct {
	mu       sync.Mutex
	key      func(T) K
	items    []T
	reserved map[K]struct{}
	inFlight int
}

// NewKeyed creates an empty queue keyed by key.
func NewKeyed[K comparable, T any](key func(T) K) *Keyed[K, T] {
	return &Keyed[K, T]{
		key:      key,
		reserved: make(map[K]struct{}),
	}
}

// Push appends item unless its key is queued or in flight. It reports
// whether the item was added.
func (q *Keyed[K, T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := q.key(item)
	if _, ok := q.reserved[k]; ok {
		return false
	}
	q.reserved[k] = struct{}{}
	q.items = append(q.items, item)
	return true
}

// Has reports whether key is queued or in flight.
func (q *Keyed[K, T]) Has(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.reserved[key]
	return ok
}

// Take removes every queued item and marks it in flight. The caller must
// hand the batch back to Done or Requeue.
func (q *Keyed[K, T]) Take() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.items
	q.items = nil
	q.inFlight += len(batch)
	return batch
}

// Done releases the keys of a written batch.
func (q *Keyed[K, T]) Done(batch []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range batch {
		delete(q.reserved, q.key(it))
	}
	q.inFlight -= len(batch)
}

// Requeue puts a failed batch back ahead of anything pushed since Take.
func (q *Keyed[K, T]) Requeue(batch []T) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]T, 0, len(batch)+len(q.items)), batch...), q.items...)
	q.inFlight -= len(batch)
}

// Len is the number of items not yet written, queued or in flight.
func (q *Keyed[K, T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.inFlight
}

// Queued is the number of items waiting for the next Take.
func (q *Keyed[K, T]) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
