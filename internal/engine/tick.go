package engine

import (
	"log/slog"
	"time"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/population"
)

// Result is the output of one run.
type Result struct {
	Seed    int64            `json:"seed"`
	Initial disease.Counts   `json:"initial"` // Step 0, before any step ran
	Series  []disease.Counts `json:"series"`  // One record per step, steps 1..Steps
	Elapsed time.Duration    `json:"elapsed"`

	// Population is the final snapshot.
	Population *population.Population `json:"-"`
}

// Final returns the last record of the series.
func (r *Result) Final() disease.Counts {
	if len(r.Series) == 0 {
		return r.Initial
	}
	return r.Series[len(r.Series)-1]
}

// Outcomes returns the per-individual final outcomes.
func (r *Result) Outcomes() []population.Outcome {
	return r.Population.Outcomes()
}

// Run validates and executes a complete run over pop, which it mutates in place.
func Run(pop *population.Population, cfg Config) (*Result, error) {
	sim, err := New(pop, cfg)
	if err != nil {
		return nil, err
	}
	return sim.Run()
}

// Run executes every configured step. A Simulation can only be run once;
// replaying requires a fresh population and the same seed.
func (s *Simulation) Run() (*Result, error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}
	s.ran = true

	start := time.Now()
	res := &Result{
		Seed:    s.cfg.Seed,
		Initial: s.last,
		Series:  make([]disease.Counts, 0, s.cfg.Steps),
	}

	slog.Info("simulation started",
		"population", s.Population.Size(),
		"families", len(s.Population.Families()),
		"steps", s.cfg.Steps,
		"seed", s.cfg.Seed,
		"streams", s.cfg.Streams.String(),
		"workers", s.workers,
	)

	for step := 1; step <= s.cfg.Steps; step++ {
		counts, stats, err := s.step(step)
		if err != nil {
			return nil, err
		}
		res.Series = append(res.Series, counts)

		if s.cfg.OnStep != nil {
			s.cfg.OnStep(step, s.Population, counts)
		}
		if s.cfg.LogEvery > 0 && (step%s.cfg.LogEvery == 0 || step == s.cfg.Steps) {
			logStep(counts, stats)
		}
	}

	res.Elapsed = time.Since(start)
	res.Population = s.Population

	final := res.Final()
	slog.Info("simulation finished",
		"steps", s.LastStep,
		"elapsed", res.Elapsed,
		"recovered", final.Recovered,
		"dead", final.Dead,
	)
	return res, nil
}

func logStep(c disease.Counts, stats stepStats) {
	slog.Info("step report",
		"step", c.Step,
		"S", c.Susceptible,
		"E", c.Exposed,
		"I", c.Infected,
		"H", c.Hospitalised,
		"R", c.Recovered,
		"D", c.Dead,
		"contacts", stats.contacts,
		"new_exposed", stats.exposed,
	)
}
