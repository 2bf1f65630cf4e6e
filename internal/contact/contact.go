// Package contact generates the per-step contact set: every household pair,
// plus extrafamilial pairs resampled each step.
package contact

import (
	"fmt"

	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/simerr"
	"github.com/talgya/seihrd/internal/workpool"
)

// Pair is an unordered contact between two individuals, stored with A < B.
type Pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// NewPair normalises (a, b) so that A < B.
func NewPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) key() uint64 {
	return uint64(p.A)<<32 | uint64(uint32(p.B))
}

// Set is the ordered contact list for one step. Household pairs come first in
// family order, then extrafamilial pairs in initiator id order. A pair appears
// at most once.
type Set []Pair

// Generator draws extrafamilial contacts. Each step an individual makes
// external contact with probability Probability and, if so, meets Count
// distinct non-family individuals chosen uniformly.
type Generator struct {
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// Validate checks the generator against pop.
func (g Generator) Validate(pop *population.Population) error {
	if err := simerr.NonNegative("extrafamilial_contact_count", g.Count); err != nil {
		return err
	}
	if err := simerr.Probability("extrafamilial_contact_probability", g.Probability); err != nil {
		return err
	}
	if limit := pop.Size() - pop.LargestFamily(); g.Count > limit {
		return simerr.Invalid("extrafamilial_contact_count", g.Count,
			fmt.Sprintf("exceeds population size minus largest family (%d)", limit))
	}
	return nil
}

// FamilyPairs lists every within-family pair.
func FamilyPairs(pop *population.Population) Set {
	var out Set
	for _, f := range pop.Families() {
		for a := f.Start; a < f.Start+f.Size; a++ {
			for b := a + 1; b < f.Start+f.Size; b++ {
				out = append(out, Pair{A: a, B: b})
			}
		}
	}
	return out
}

// Partners draws the extrafamilial partners initiated by id this step.
// A Count of zero makes no draws.
func (g Generator) Partners(pop *population.Population, id int, src entropy.Source) ([]int, error) {
	if g.Count == 0 {
		return nil, nil
	}
	if !src.Bernoulli(g.Probability) {
		return nil, nil
	}

	fam := pop.FamilyOf(id)
	picks, err := src.SampleKOfN(pop.Size()-fam.Size, g.Count)
	if err != nil {
		return nil, fmt.Errorf("sample partners of %d: %w", id, err)
	}
	// Map the non-family index space around the family's contiguous block.
	for i, k := range picks {
		if k >= fam.Start {
			picks[i] = k + fam.Size
		}
	}
	return picks, nil
}

// Step builds the contact set for step. Partners for each individual come
// from streams keyed by (step, id, OpContact); with keyed streams the work is
// spread over workers goroutines and the result does not depend on workers.
func (g Generator) Step(pop *population.Population, streams entropy.Streams, step, workers int) (Set, error) {
	set := FamilyPairs(pop)
	if g.Count == 0 {
		return set, nil
	}

	partners := make([][]int, pop.Size())
	err := workpool.Range(workers, pop.Size(), func(lo, hi int) error {
		for id := lo; id < hi; id++ {
			ps, err := g.Partners(pop, id, streams.For(step, id, entropy.OpContact))
			if err != nil {
				return err
			}
			partners[id] = ps
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	for id, ps := range partners {
		for _, other := range ps {
			p := NewPair(id, other)
			if _, dup := seen[p.key()]; dup {
				continue
			}
			seen[p.key()] = struct{}{}
			set = append(set, p)
		}
	}
	return set, nil
}
