package simulation

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniformly distributed values in [0, 1).
//
// Implementations must be safe for concurrent use.
type Source interface {
	Float64() float64
}

// lockedSource serialises access to a seeded generator.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a Source backed by a PCG generator.
// A zero seed draws a random seed from the runtime.
func NewRandomSource(seed uint64) Source {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// FixedSource replays a fixed sequence of values, wrapping around at the end.
// An empty sequence always yields 0.5.
type FixedSource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewFixedSource creates a FixedSource over values.
func NewFixedSource(values ...float64) *FixedSource {
	return &FixedSource{values: values}
}

// Float64 returns the next value in the sequence.
func (s *FixedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0.5
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Uniform maps the next value of src onto [lo, hi].
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}
