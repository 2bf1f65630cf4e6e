// Package transmission decides which susceptible contacts of infectious
// individuals become exposed during a step.
package transmission

import (
	"slices"

	"github.com/talgya/seihrd/internal/contact"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/simerr"
	"github.com/talgya/seihrd/internal/workpool"
)

// Model is a per-contact Bernoulli transmission model.
type Model struct {
	Probability float64 `json:"probability"`

	// ExposedInfectious lets individuals in E transmit as well as those in I.
	ExposedInfectious bool `json:"exposed_infectious"`
}

// Validate checks the model parameters.
func (m Model) Validate() error {
	return simerr.Probability("transmission_probability", m.Probability)
}

// roles returns the susceptible and infectious side of a pair, or ok=false
// when the pair cannot transmit.
func (m Model) roles(a, b *population.Individual) (sus, inf *population.Individual, ok bool) {
	switch {
	case a.State == disease.Susceptible && b.State.Infectious(m.ExposedInfectious):
		return a, b, true
	case b.State == disease.Susceptible && a.State.Infectious(m.ExposedInfectious):
		return b, a, true
	}
	return nil, nil, false
}

func (m Model) chance(sus, inf *population.Individual) float64 {
	return m.Probability * sus.Susceptibility * inf.Infectiousness
}

// MaybeInfect evaluates one contact. It returns the id of the newly exposed
// individual, or nothing when the pair is not exactly one susceptible and one
// infectious party or the draw fails. It does not mutate either individual.
func (m Model) MaybeInfect(a, b *population.Individual, src entropy.Source) []int {
	sus, inf, ok := m.roles(a, b)
	if !ok {
		return nil
	}
	if !src.Bernoulli(m.chance(sus, inf)) {
		return nil
	}
	return []int{sus.ID}
}

// Apply evaluates every contact of the step against pre-step state, in
// contact order, and returns the newly exposed ids in the order they were
// exposed. A susceptible is not re-evaluated once exposed within the step.
// Draws for a susceptible come from the stream keyed by
// (step, susceptible id, OpTransmission).
//
// With workers > 1 the contacts are grouped per susceptible and evaluated in
// parallel; this requires keyed streams and gives the same result as the
// sequential pass.
func (m Model) Apply(pop *population.Population, contacts contact.Set, streams entropy.Streams, step, workers int) ([]int, error) {
	if workers > 1 {
		return m.applyGrouped(pop, contacts, streams, step, workers)
	}

	var exposed []int
	done := make(map[int]struct{})
	// One source per susceptible for the whole step, so repeated
	// opportunities advance its stream rather than re-deriving it.
	srcs := make(map[int]entropy.Source)
	for _, p := range contacts {
		a, b := &pop.Individuals[p.A], &pop.Individuals[p.B]
		sus, inf, ok := m.roles(a, b)
		if !ok {
			continue
		}
		if _, already := done[sus.ID]; already {
			continue
		}
		src, ok := srcs[sus.ID]
		if !ok {
			src = streams.For(step, sus.ID, entropy.OpTransmission)
			srcs[sus.ID] = src
		}
		if src.Bernoulli(m.chance(sus, inf)) {
			done[sus.ID] = struct{}{}
			exposed = append(exposed, sus.ID)
		}
	}
	return exposed, nil
}

type exposure struct {
	contact int // index into the contact set
	partner int // infectious individual
}

func (m Model) applyGrouped(pop *population.Population, contacts contact.Set, streams entropy.Streams, step, workers int) ([]int, error) {
	bySus := make(map[int][]exposure)
	var order []int
	for i, p := range contacts {
		sus, inf, ok := m.roles(&pop.Individuals[p.A], &pop.Individuals[p.B])
		if !ok {
			continue
		}
		if _, seen := bySus[sus.ID]; !seen {
			order = append(order, sus.ID)
		}
		bySus[sus.ID] = append(bySus[sus.ID], exposure{contact: i, partner: inf.ID})
	}

	// hit[k] is the contact index that exposed order[k], or -1.
	hit := make([]int, len(order))
	err := workpool.Range(workers, len(order), func(lo, hi int) error {
		for k := lo; k < hi; k++ {
			id := order[k]
			sus := &pop.Individuals[id]
			src := streams.For(step, id, entropy.OpTransmission)
			hit[k] = -1
			for _, e := range bySus[id] {
				if src.Bernoulli(m.chance(sus, &pop.Individuals[e.partner])) {
					hit[k] = e.contact
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	type event struct{ contact, id int }
	var events []event
	for k, c := range hit {
		if c >= 0 {
			events = append(events, event{contact: c, id: order[k]})
		}
	}
	if len(events) == 0 {
		return nil, nil
	}
	slices.SortFunc(events, func(x, y event) int { return x.contact - y.contact })

	exposed := make([]int, len(events))
	for i, e := range events {
		exposed[i] = e.id
	}
	return exposed, nil
}
