// Package engine runs a SEIHRD microsimulation over a population: contacts,
// then transmission, then progression, committed and tallied once per step.
package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/progression"
	"github.com/talgya/seihrd/internal/workpool"
)

// ErrAlreadyRun is returned when Run is called twice on one Simulation.
var ErrAlreadyRun = errors.New("simulation already run")

// Simulation exclusively owns the population for the duration of a run.
type Simulation struct {
	Population *population.Population
	LastStep   int // Most recent step committed

	cfg         Config
	streams     entropy.Streams
	progression *progression.Model
	workers     int
	last        disease.Counts

	// Scratch buffer of per-individual decisions, reused each step.
	next []disease.State

	ran bool
}

// New validates pop and cfg and prepares a run. All configuration errors
// surface here, before any step executes.
func New(pop *population.Population, cfg Config) (*Simulation, error) {
	if pop == nil {
		return nil, errors.New("nil population")
	}
	if err := pop.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(pop); err != nil {
		return nil, err
	}
	pm, err := progression.New(cfg.Progression)
	if err != nil {
		return nil, err
	}

	return &Simulation{
		Population:  pop,
		cfg:         cfg,
		streams:     cfg.streams(),
		progression: pm,
		workers:     cfg.workers(),
		last:        pop.Counts(0),
		next:        make([]disease.State, pop.Size()),
	}, nil
}

// step advances the simulation by one step and returns its tally.
//
// Contacts, transmission and progression decisions only read the pre-step
// state; the commit phase then applies them in one ordered pass.
func (s *Simulation) step(step int) (disease.Counts, stepStats, error) {
	pop := s.Population

	contacts, err := s.cfg.Contact.Step(pop, s.streams, step, s.workers)
	if err != nil {
		return disease.Counts{}, stepStats{}, fmt.Errorf("step %d contacts: %w", step, err)
	}

	exposed, err := s.cfg.Transmission.Apply(pop, contacts, s.streams, step, s.workers)
	if err != nil {
		return disease.Counts{}, stepStats{}, fmt.Errorf("step %d transmission: %w", step, err)
	}

	env := progression.Env{Hospitalised: s.last.Hospitalised}
	err = workpool.Range(s.workers, pop.Size(), func(lo, hi int) error {
		for id := lo; id < hi; id++ {
			ind := &pop.Individuals[id]
			s.next[id] = s.progression.Next(ind, s.streams.For(step, id, entropy.OpProgression), env)
		}
		return nil
	})
	if err != nil {
		return disease.Counts{}, stepStats{}, fmt.Errorf("step %d progression: %w", step, err)
	}

	// Commit. Newly exposed individuals were susceptible pre-step, so their
	// progression decision was to stay.
	for _, id := range exposed {
		s.next[id] = disease.Exposed
	}
	for id := range pop.Individuals {
		ind := &pop.Individuals[id]
		if next := s.next[id]; next != ind.State {
			ind.Enter(next, step)
		} else {
			ind.Stay()
		}
	}

	s.LastStep = step
	s.last = pop.Counts(step)
	return s.last, stepStats{contacts: len(contacts), exposed: len(exposed)}, nil
}

type stepStats struct {
	contacts int
	exposed  int
}
