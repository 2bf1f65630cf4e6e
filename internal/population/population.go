package population

import (
	"fmt"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/simerr"
)

// Population owns every individual and the family partition over them.
type Population struct {
	Individuals []Individual
	families    []Family
	largest     int
}

// Size returns the number of individuals.
func (p *Population) Size() int {
	return len(p.Individuals)
}

// Families returns the family partition in id order.
func (p *Population) Families() []Family {
	return p.families
}

// LargestFamily returns the size of the largest family.
func (p *Population) LargestFamily() int {
	return p.largest
}

// FamilyOf returns the family of individual id.
func (p *Population) FamilyOf(id int) Family {
	return p.families[p.Individuals[id].FamilyID]
}

// Members returns the ids of the given family's members.
func (p *Population) Members(familyID int) []int {
	f := p.families[familyID]
	ids := make([]int, f.Size)
	for i := range ids {
		ids[i] = f.Start + i
	}
	return ids
}

// Counts tallies the current compartment sizes.
func (p *Population) Counts(step int) disease.Counts {
	c := disease.Counts{Step: step}
	for i := range p.Individuals {
		c.Add(p.Individuals[i].State)
	}
	return c
}

// Outcomes returns the per-individual final snapshot.
func (p *Population) Outcomes() []Outcome {
	out := make([]Outcome, len(p.Individuals))
	for i, ind := range p.Individuals {
		out[i] = Outcome{
			ID:            ind.ID,
			FamilyID:      ind.FamilyID,
			FinalState:    ind.State,
			ExposedAt:     ind.ExposedAt,
			StepsInfected: ind.StepsInfected,
		}
	}
	return out
}

// Validate checks that families partition the population and every
// individual is in a valid state.
func (p *Population) Validate() error {
	if len(p.Individuals) == 0 {
		return simerr.Invalid("size", 0, "population is empty")
	}
	next := 0
	for i, f := range p.families {
		if f.ID != i || f.Start != next || f.Size < 1 {
			return simerr.Inconsistent("family", f.ID, fmt.Sprintf("family does not continue the partition at id %d", next))
		}
		next += f.Size
	}
	if next != len(p.Individuals) {
		return simerr.Inconsistent("size", len(p.Individuals), fmt.Sprintf("families cover %d individuals", next))
	}
	for i, ind := range p.Individuals {
		if ind.ID != i {
			return simerr.Inconsistent("individual", ind.ID, fmt.Sprintf("stored at index %d", i))
		}
		if ind.FamilyID < 0 || ind.FamilyID >= len(p.families) || !p.families[ind.FamilyID].Contains(i) {
			return simerr.Inconsistent("family_id", ind.FamilyID, fmt.Sprintf("individual %d is not a member", i))
		}
		if !ind.State.Valid() {
			return simerr.Invalid("state", ind.State, fmt.Sprintf("individual %d", i))
		}
	}
	return nil
}

// FromFamilySizes builds an all-susceptible population with one family per
// entry of sizes.
func FromFamilySizes(sizes []int) (*Population, error) {
	p := &Population{}
	for fid, size := range sizes {
		if size < 1 {
			return nil, simerr.Invalid("family_sizes", size, fmt.Sprintf("family %d must have at least one member", fid))
		}
		start := len(p.Individuals)
		p.families = append(p.families, Family{ID: fid, Start: start, Size: size})
		if size > p.largest {
			p.largest = size
		}
		for i := 0; i < size; i++ {
			p.Individuals = append(p.Individuals, Individual{
				ID:             start + i,
				FamilyID:       fid,
				State:          disease.Susceptible,
				Susceptibility: 1,
				ExposedAt:      -1,
			})
		}
	}
	if len(p.Individuals) == 0 {
		return nil, simerr.Invalid("size", 0, "population is empty")
	}
	return p, nil
}

// Seed places id into state s at step 0.
func (p *Population) Seed(id int, s disease.State) error {
	if s != disease.Exposed && s != disease.Infected {
		return simerr.Invalid("seed_state", s, "must be E or I")
	}
	if id < 0 || id >= len(p.Individuals) {
		return simerr.Inconsistent("seed_ids", id, "no such individual")
	}
	ind := &p.Individuals[id]
	if ind.State != disease.Susceptible {
		return simerr.Inconsistent("seed_ids", id, "already seeded")
	}
	ind.State = s
	ind.TimeInState = 0
	ind.ExposedAt = 0
	ind.Infectiousness = infectiousnessOf(s)
	return nil
}
