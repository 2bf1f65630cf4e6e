// Package population holds the simulated individuals, their family
// partition and per-individual disease state.
package population

import (
	"github.com/talgya/seihrd/internal/disease"
)

// Individual is one simulated person.
type Individual struct {
	ID       int `json:"id"`
	FamilyID int `json:"family_id"`

	State       disease.State `json:"state"`
	TimeInState int           `json:"time_in_state"` // Steps since entering State

	Susceptibility float64 `json:"susceptibility"` // Multiplies transmission probability when susceptible
	Infectiousness float64 `json:"infectiousness"` // 1 while in E or I, otherwise 0

	// Outcome bookkeeping
	ExposedAt     int `json:"exposed_at"`     // Step of S→E; 0 for initial seeds, -1 if never exposed
	StepsInfected int `json:"steps_infected"` // Steps ended in I or H
}

// Enter moves the individual into s at step and resets its time-in-state.
func (ind *Individual) Enter(s disease.State, step int) {
	ind.State = s
	ind.TimeInState = 0
	if s == disease.Exposed && ind.ExposedAt < 0 {
		ind.ExposedAt = step
	}
	ind.Infectiousness = infectiousnessOf(s)
	ind.countInfected()
}

// Stay keeps the individual in its current state for another step.
func (ind *Individual) Stay() {
	ind.TimeInState++
	ind.countInfected()
}

func (ind *Individual) countInfected() {
	if ind.State == disease.Infected || ind.State == disease.Hospitalised {
		ind.StepsInfected++
	}
}

func infectiousnessOf(s disease.State) float64 {
	if s == disease.Exposed || s == disease.Infected {
		return 1
	}
	return 0
}

// Family is a household. Its members are the contiguous ids [Start, Start+Size).
type Family struct {
	ID    int `json:"id"`
	Start int `json:"start"`
	Size  int `json:"size"`
}

// Contains reports whether id belongs to the family.
func (f Family) Contains(id int) bool {
	return id >= f.Start && id < f.Start+f.Size
}

// Outcome is the final per-individual record of a run.
type Outcome struct {
	ID            int           `json:"id" db:"individual_id"`
	FamilyID      int           `json:"family_id" db:"family_id"`
	FinalState    disease.State `json:"final_state" db:"final_state"`
	ExposedAt     int           `json:"exposed_at" db:"exposed_at"`
	StepsInfected int           `json:"steps_infected" db:"steps_infected"`
}
