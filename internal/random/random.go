// Package random provides the random sources consumed by the combat resolver
// and the equipment generator.
//
// Sources are scoped per request: callers derive one from a seed with New and
// discard it afterwards. Locked wraps a source that must be shared between
// goroutines.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Source is the subset of *rand.Rand the engine draws from.
type Source interface {
	// Float64 returns a uniform value in [0,1).
	Float64() float64
	// Intn returns a uniform value in [0,n). It panics if n <= 0.
	Intn(n int) int
	// Perm returns a random permutation of [0,n).
	Perm(n int) []int
}

var _ Source = (*rand.Rand)(nil)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// New returns a source seeded with seed. It is not safe for concurrent use.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// ForRequest returns a fresh source for one request. A non-zero fixed seed
// makes every request replay the same sequence.
func ForRequest(fixed int64) (Source, int64, error) {
	seed := fixed
	if seed == 0 {
		var err error
		if seed, err = NewSeed(); err != nil {
			return nil, 0, err
		}
	}
	return New(seed), seed, nil
}

// Locked serializes access to an underlying source.
type Locked struct {
	mu  sync.Mutex
	src Source
}

// NewLocked wraps src for shared use.
func NewLocked(src Source) *Locked {
	return &Locked{src: src}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

func (l *Locked) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Perm(n)
}

// Fixed replays a scripted sequence of Float64 values, then repeats the last
// one. Intn and Perm fall back to a seeded source. Intended for tests and
// previews that need a predetermined combat roll.
type Fixed struct {
	values []float64
	next   int
	rest   *rand.Rand
}

// NewFixed returns a source whose Float64 calls yield values in order.
func NewFixed(values ...float64) *Fixed {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Fixed{values: values, rest: New(1)}
}

func (f *Fixed) Float64() float64 {
	v := f.values[f.next]
	if f.next < len(f.values)-1 {
		f.next++
	}
	return v
}

func (f *Fixed) Intn(n int) int {
	return f.rest.Intn(n)
}

func (f *Fixed) Perm(n int) []int {
	return f.rest.Perm(n)
}
