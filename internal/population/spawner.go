// Population construction: family sizes, contiguous id assignment and
// initial seed infections.
package population

import (
	"fmt"
	"slices"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/simerr"
)

// Spec describes how to build a population. Exactly one family layout is used:
// FamilySizes, else FamilyCounts, else Size split by SizeWeights.
type Spec struct {
	// Size is the declared population size. Optional with FamilySizes or
	// FamilyCounts, but must agree with them when set.
	Size int `json:"size"`

	// FamilySizes lists every family's size explicitly.
	FamilySizes []int `json:"family_sizes,omitempty"`

	// FamilyCounts[i] is the number of families of size i+1.
	FamilyCounts []int `json:"family_counts,omitempty"`

	// SizeWeights[i] is the relative frequency of families of size i+1. Families
	// are drawn until Size is reached; the last one is truncated to fit.
	SizeWeights []float64 `json:"size_weights,omitempty"`

	SeedIDs   []int         `json:"seed_ids,omitempty"` // Explicit initial seeds
	SeedCount int           `json:"seed_count"`         // Additional seeds drawn at random
	SeedState disease.State `json:"seed_state"`         // E or I
}

// Build creates the population described by spec, drawing any random family
// sizes and seeds from src.
func Build(spec Spec, src entropy.Source) (*Population, error) {
	sizes, err := familySizes(spec, src)
	if err != nil {
		return nil, err
	}

	p, err := FromFamilySizes(sizes)
	if err != nil {
		return nil, err
	}

	if err := seed(p, spec, src); err != nil {
		return nil, err
	}
	return p, nil
}

func familySizes(spec Spec, src entropy.Source) ([]int, error) {
	if err := simerr.NonNegative("size", spec.Size); err != nil {
		return nil, err
	}

	switch {
	case len(spec.FamilySizes) > 0 && len(spec.FamilyCounts) > 0:
		return nil, simerr.Invalid("family_sizes", spec.FamilySizes, "set only one of family_sizes and family_counts")

	case len(spec.FamilySizes) > 0:
		total := 0
		for _, s := range spec.FamilySizes {
			total += s
		}
		if spec.Size > 0 && total != spec.Size {
			return nil, simerr.Inconsistent("family_sizes", total, fmt.Sprintf("families sum to %d, declared size is %d", total, spec.Size))
		}
		return slices.Clone(spec.FamilySizes), nil

	case len(spec.FamilyCounts) > 0:
		var sizes []int
		total := 0
		for i, n := range spec.FamilyCounts {
			if n < 0 {
				return nil, simerr.Invalid("family_counts", n, fmt.Sprintf("count of families of size %d is negative", i+1))
			}
			for j := 0; j < n; j++ {
				sizes = append(sizes, i+1)
			}
			total += n * (i + 1)
		}
		if spec.Size > 0 && total != spec.Size {
			return nil, simerr.Inconsistent("family_counts", total, fmt.Sprintf("families sum to %d, declared size is %d", total, spec.Size))
		}
		return sizes, nil
	}

	if spec.Size == 0 {
		return nil, simerr.Invalid("size", 0, "population size must be positive")
	}
	return drawFamilySizes(spec.Size, spec.SizeWeights, src)
}

// drawFamilySizes partitions n by repeated categorical draws over weights.
// No weights means single-member families.
func drawFamilySizes(n int, weights []float64, src entropy.Source) ([]int, error) {
	if len(weights) == 0 {
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = 1
		}
		return sizes, nil
	}

	sum := 0.0
	for i, w := range weights {
		if !(w >= 0) {
			return nil, simerr.Invalid("size_weights", w, fmt.Sprintf("weight for size %d must not be negative", i+1))
		}
		sum += w
	}
	if sum <= 0 {
		return nil, simerr.Invalid("size_weights", weights, "weights must have a positive sum")
	}

	var sizes []int
	remaining := n
	for remaining > 0 {
		u := src.Uniform() * sum
		size := len(weights)
		acc := 0.0
		for i, w := range weights {
			acc += w
			if u < acc {
				size = i + 1
				break
			}
		}
		if size > remaining {
			size = remaining
		}
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes, nil
}

func seed(p *Population, spec Spec, src entropy.Source) error {
	if len(spec.SeedIDs) == 0 && spec.SeedCount == 0 {
		return nil
	}
	if spec.SeedState != disease.Exposed && spec.SeedState != disease.Infected {
		return simerr.Invalid("seed_state", spec.SeedState, "must be E or I")
	}
	if err := simerr.NonNegative("seed_count", spec.SeedCount); err != nil {
		return err
	}

	for _, id := range spec.SeedIDs {
		if err := p.Seed(id, spec.SeedState); err != nil {
			return err
		}
	}
	if spec.SeedCount == 0 {
		return nil
	}

	// Draw the remaining seeds among individuals not already seeded.
	candidates := make([]int, 0, p.Size())
	for i := range p.Individuals {
		if p.Individuals[i].State == disease.Susceptible {
			candidates = append(candidates, i)
		}
	}
	if spec.SeedCount > len(candidates) {
		return simerr.Invalid("seed_count", spec.SeedCount, fmt.Sprintf("only %d individuals left to seed", len(candidates)))
	}
	picks, err := src.SampleKOfN(len(candidates), spec.SeedCount)
	if err != nil {
		return fmt.Errorf("draw seeds: %w", err)
	}
	for _, k := range picks {
		if err := p.Seed(candidates[k], spec.SeedState); err != nil {
			return err
		}
	}
	return nil
}
