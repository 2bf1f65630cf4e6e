// Package entropy provides the seeded random streams behind every stochastic
// decision in a run. Identical seeds and call sequences give identical draws.
package entropy

import (
	"math"
	"math/rand/v2"

	"github.com/talgya/seihrd/internal/simerr"
)

// Source is the draw contract the simulation models consume.
type Source interface {
	// Uniform returns a float64 in [0, 1).
	Uniform() float64
	// Bernoulli reports whether an event with probability p occurred.
	Bernoulli(p float64) bool
	// SampleKOfN returns k distinct indices in [0, n).
	SampleKOfN(n, k int) ([]int, error)
}

// Stream is a sequential PCG stream.
type Stream struct {
	rng *rand.Rand
}

// NewStream creates a stream seeded from seed.
func NewStream(seed int64) *Stream {
	h := mix(uint64(seed))
	return newStreamFromState(h)
}

func newStreamFromState(h uint64) *Stream {
	return &Stream{rng: rand.New(rand.NewPCG(h, mix(h^golden)))}
}

// Uniform returns a float64 in [0, 1).
func (s *Stream) Uniform() float64 {
	return s.rng.Float64()
}

// Bernoulli clamps p to [0, 1] and consumes exactly one uniform draw
// regardless of p, so call sequences stay aligned across parameter sets.
func (s *Stream) Bernoulli(p float64) bool {
	u := s.rng.Float64()
	return u < clamp01(p)
}

// SampleKOfN draws k distinct indices from [0, n) using Floyd's algorithm.
// Indices are returned in the order they were drawn.
func (s *Stream) SampleKOfN(n, k int) ([]int, error) {
	if n < 0 {
		return nil, simerr.Invalid("n", n, "must not be negative")
	}
	if k < 0 || k > n {
		return nil, simerr.Invalid("k", k, "must be in [0, n]")
	}
	if k == 0 {
		return nil, nil
	}

	out := make([]int, 0, k)
	seen := make(map[int]struct{}, k)
	for j := n - k; j < n; j++ {
		t := s.rng.IntN(j + 1)
		if _, dup := seen[t]; dup {
			t = j
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	return p
}

const golden = 0x9e3779b97f4a7c15

// mix is the splitmix64 finaliser.
func mix(x uint64) uint64 {
	x += golden
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
