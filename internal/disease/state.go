// Package disease defines the SEIHRD compartments, the edges allowed between
// them and the per-step compartment tally.
package disease

import (
	"fmt"
	"strings"
)

// State is one of the six SEIHRD compartments.
type State uint8

const (
	Susceptible  State = iota // Can be exposed through contact with an infectious person
	Exposed                   // Carrying the virus, incubating
	Infected                  // Symptomatic and spreading
	Hospitalised              // Admitted to hospital
	Recovered                 // Immune, absorbing
	Dead                      // Absorbing
)

// NumStates is the number of compartments.
const NumStates = 6

var stateCodes = [NumStates]string{"S", "E", "I", "H", "R", "D"}

var stateNames = [NumStates]string{
	"susceptible", "exposed", "infected", "hospitalised", "recovered", "dead",
}

// States lists every compartment in canonical order.
func States() [NumStates]State {
	return [NumStates]State{Susceptible, Exposed, Infected, Hospitalised, Recovered, Dead}
}

// String returns the one-letter code.
func (s State) String() string {
	if int(s) < NumStates {
		return stateCodes[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Name returns the lower-case long name.
func (s State) Name() string {
	if int(s) < NumStates {
		return stateNames[s]
	}
	return s.String()
}

// Valid reports whether s is one of the six compartments.
func (s State) Valid() bool {
	return int(s) < NumStates
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	return s == Recovered || s == Dead
}

// Infectious reports whether an individual in s can transmit. Infected always
// can; Exposed only when exposedInfectious is set.
func (s State) Infectious(exposedInfectious bool) bool {
	return s == Infected || (exposedInfectious && s == Exposed)
}

// ParseState accepts a one-letter code or a long name, case-insensitively.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i := 0; i < NumStates; i++ {
		if v == strings.ToLower(stateCodes[i]) || v == stateNames[i] {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown disease state %q", v)
}

// edges holds the permitted transitions out of each state.
var edges = [NumStates][]State{
	Susceptible:  {Exposed},
	Exposed:      {Infected},
	Infected:     {Hospitalised, Recovered, Dead},
	Hospitalised: {Recovered, Dead},
	Recovered:    nil,
	Dead:         nil,
}

// CanTransition reports whether from→to is a permitted SEIHRD edge.
// Staying in the same state is always permitted.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, e := range edges[from] {
		if e == to {
			return true
		}
	}
	return false
}

// MarshalText encodes s as its one-letter code.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid disease state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts anything ParseState does.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
