// Package progression implements the per-individual SEIHRD state machine.
//
// Exits from a state with several outgoing edges are resolved by one of two
// policies, fixed for a whole run:
//
//   - Priority: independent Bernoulli draws in the order D, H, R; the first
//     success wins. I draws up to three times, H up to two.
//   - Categorical: a single uniform draw against the cumulative exit
//     probabilities in the order D, H, R; the remainder means stay.
//
// A draw is consumed even when its probability is 0 or 1, so the draw
// sequence depends only on states, dwell times and earlier outcomes.
package progression

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/simerr"
)

// Policy selects how competing exits are resolved.
type Policy uint8

const (
	Priority Policy = iota
	Categorical
)

func (p Policy) String() string {
	switch p {
	case Priority:
		return "priority"
	case Categorical:
		return "categorical"
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy accepts "priority" or "categorical".
func ParsePolicy(v string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "priority":
		return Priority, nil
	case "categorical":
		return Categorical, nil
	}
	return 0, simerr.Invalid("policy", v, "must be priority or categorical")
}

// Params holds the per-step transition probabilities and dwell rules.
type Params struct {
	EToI float64 `json:"p_e_to_i"`
	IToH float64 `json:"p_i_to_h"`
	IToR float64 `json:"p_i_to_r"`
	IToD float64 `json:"p_i_to_d"`
	HToR float64 `json:"p_h_to_r"`
	HToD float64 `json:"p_h_to_d"`

	// DurationE > 0 makes E→I deterministic: the individual becomes infected
	// on the step that completes its DurationE-th step in E.
	DurationE int `json:"duration_e"`

	// Minimum dwell times: an exit is only eligible once TimeInState+1 >= min.
	MinE    int `json:"min_e"`
	MinIToR int `json:"min_i_to_r"`
	MinHToR int `json:"min_h_to_r"`
	MinHToD int `json:"min_h_to_d"`

	// When HospitalCapacity > 0 and at least that many are hospitalised at the
	// start of a step, HToD is multiplied by OverloadMultiplier.
	HospitalCapacity   int     `json:"hospital_capacity"`
	OverloadMultiplier float64 `json:"overload_multiplier"`

	Policy Policy `json:"policy"`
}

// Validate checks every probability and duration.
func (p Params) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"p_e_to_i", p.EToI},
		{"p_i_to_h", p.IToH},
		{"p_i_to_r", p.IToR},
		{"p_i_to_d", p.IToD},
		{"p_h_to_r", p.HToR},
		{"p_h_to_d", p.HToD},
	} {
		if err := simerr.Probability(c.name, c.v); err != nil {
			return err
		}
	}
	for _, c := range []struct {
		name string
		v    int
	}{
		{"duration_e", p.DurationE},
		{"min_e", p.MinE},
		{"min_i_to_r", p.MinIToR},
		{"min_h_to_r", p.MinHToR},
		{"min_h_to_d", p.MinHToD},
		{"hospital_capacity", p.HospitalCapacity},
	} {
		if err := simerr.NonNegative(c.name, c.v); err != nil {
			return err
		}
	}
	if p.HospitalCapacity > 0 && (!(p.OverloadMultiplier >= 1) || math.IsInf(p.OverloadMultiplier, 0)) {
		return simerr.Invalid("overload_multiplier", p.OverloadMultiplier, "must be finite and at least 1")
	}

	switch p.Policy {
	case Priority:
	case Categorical:
		if sum := p.IToD + p.IToH + p.IToR; sum > 1 {
			return simerr.Invalid("p_i_to_d+p_i_to_h+p_i_to_r", sum, "exit probabilities exceed 1")
		}
		if sum := p.HToD + p.HToR; sum > 1 {
			return simerr.Invalid("p_h_to_d+p_h_to_r", sum, "exit probabilities exceed 1")
		}
	default:
		return simerr.Invalid("policy", p.Policy, "unknown policy")
	}
	return nil
}

// Env carries the population-level pre-step quantities a decision may depend on.
type Env struct {
	Hospitalised int
}

// Overloaded reports whether hospitals are over capacity in env.
func (p Params) Overloaded(env Env) bool {
	return p.HospitalCapacity > 0 && env.Hospitalised >= p.HospitalCapacity
}

// Model evaluates transitions with validated Params.
type Model struct {
	p Params
}

// New validates params and returns a Model.
func New(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Model{p: params}, nil
}

// Params returns the model parameters.
func (m *Model) Params() Params {
	return m.p
}

// exit is one candidate outgoing edge.
type exit struct {
	to disease.State
	p  float64
}

// Next decides the state of ind after this step from its pre-step state.
// Susceptible individuals stay: S→E is decided by transmission.
func (m *Model) Next(ind *population.Individual, src entropy.Source, env Env) disease.State {
	dwell := ind.TimeInState + 1

	switch ind.State {
	case disease.Exposed:
		if dwell < m.p.MinE {
			return ind.State
		}
		if m.p.DurationE > 0 {
			if dwell >= m.p.DurationE {
				return disease.Infected
			}
			return ind.State
		}
		return m.resolve(ind.State, src, []exit{{disease.Infected, m.p.EToI}})

	case disease.Infected:
		exits := make([]exit, 0, 3)
		exits = append(exits, exit{disease.Dead, m.p.IToD}, exit{disease.Hospitalised, m.p.IToH})
		if dwell >= m.p.MinIToR {
			exits = append(exits, exit{disease.Recovered, m.p.IToR})
		}
		return m.resolve(ind.State, src, exits)

	case disease.Hospitalised:
		hd, hr := m.p.HToD, m.p.HToR
		if m.p.Overloaded(env) {
			hd = min(1, hd*m.p.OverloadMultiplier)
			if m.p.Policy == Categorical && hd+hr > 1 {
				hr = 1 - hd
			}
		}
		exits := make([]exit, 0, 2)
		if dwell >= m.p.MinHToD {
			exits = append(exits, exit{disease.Dead, hd})
		}
		if dwell >= m.p.MinHToR {
			exits = append(exits, exit{disease.Recovered, hr})
		}
		return m.resolve(ind.State, src, exits)
	}

	// S, R and D do not progress on their own.
	return ind.State
}

func (m *Model) resolve(stay disease.State, src entropy.Source, exits []exit) disease.State {
	if len(exits) == 0 {
		return stay
	}

	if m.p.Policy == Categorical {
		u := src.Uniform()
		acc := 0.0
		for _, e := range exits {
			acc += e.p
			if u < acc {
				return e.to
			}
		}
		return stay
	}

	for _, e := range exits {
		if src.Bernoulli(e.p) {
			return e.to
		}
	}
	return stay
}
