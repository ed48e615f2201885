package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string
	Waves int
}

func newQueue() *Keyed[string, record] {
	return NewKeyed(func(r record) string { return r.ID })
}

func TestKeyed_PushRefusesDuplicates(t *testing.T) {
	q := newQueue()

	assert.True(t, q.Push(record{ID: "b1", Waves: 1}))
	assert.False(t, q.Push(record{ID: "b1", Waves: 2}))
	assert.True(t, q.Push(record{ID: "b2"}))

	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Has("b1"))
	assert.False(t, q.Has("b3"))
}

func TestKeyed_TakeKeepsKeysUntilDone(t *testing.T) {
	q := newQueue()
	q.Push(record{ID: "b1"})
	q.Push(record{ID: "b2"})

	batch := q.Take()
	require.Equal(t, []record{{ID: "b1"}, {ID: "b2"}}, batch)
	assert.Zero(t, q.Queued())
	assert.Equal(t, 2, q.Len(), "in-flight items are still pending")

	assert.False(t, q.Push(record{ID: "b1"}), "in-flight key is reserved")
	assert.True(t, q.Has("b2"))

	q.Done(batch)
	assert.Zero(t, q.Len())
	assert.False(t, q.Has("b1"))
	assert.True(t, q.Push(record{ID: "b1"}))
}

func TestKeyed_RequeueGoesFirst(t *testing.T) {
	q := newQueue()
	q.Push(record{ID: "b1"})
	q.Push(record{ID: "b2"})

	batch := q.Take()
	q.Push(record{ID: "b3"})
	q.Requeue(batch)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Queued())
	assert.Equal(t, []record{{ID: "b1"}, {ID: "b2"}, {ID: "b3"}}, q.Take())
}

func TestKeyed_EmptyTake(t *testing.T) {
	q := newQueue()

	batch := q.Take()
	assert.Empty(t, batch)
	q.Done(batch)
	q.Requeue(batch)
	assert.Zero(t, q.Len())
}

func TestKeyed_ConcurrentPushSameKey(t *testing.T) {
	q := newQueue()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Push(record{ID: fmt.Sprintf("b%d", i%10)}) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, added)
	assert.Equal(t, 10, q.Len())
}
