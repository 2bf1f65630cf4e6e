// Package report condenses a run's compartment series into headline figures
// and writes the series as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/talgya/seihrd/internal/disease"
)

// Summary holds the headline figures of one run.
type Summary struct {
	Population int `json:"population"`
	Steps      int `json:"steps"`

	PeakInfected         int `json:"peak_infected"`
	PeakInfectedStep     int `json:"peak_infected_step"`
	PeakHospitalised     int `json:"peak_hospitalised"`
	PeakHospitalisedStep int `json:"peak_hospitalised_step"`

	Recovered int `json:"recovered"`
	Dead      int `json:"dead"`

	// AttackRate is the share of the initially susceptible population that
	// left S during the run.
	AttackRate float64 `json:"attack_rate"`

	// StepsOverCapacity counts steps where H exceeded capacity (0 when
	// capacity is unset).
	StepsOverCapacity int `json:"steps_over_capacity"`

	// Ended is the first step with no one in E, I or H, or 0 if the epidemic
	// was still active at the end.
	Ended int `json:"ended"`
}

// Summarize computes the summary of series, which starts after initial.
func Summarize(initial disease.Counts, series []disease.Counts, capacity int) Summary {
	s := Summary{
		Population:           initial.Total(),
		Steps:                len(series),
		PeakInfected:         initial.Infected,
		PeakHospitalised:     initial.Hospitalised,
		PeakInfectedStep:     initial.Step,
		PeakHospitalisedStep: initial.Step,
	}

	final := initial
	for _, c := range series {
		if c.Infected > s.PeakInfected {
			s.PeakInfected, s.PeakInfectedStep = c.Infected, c.Step
		}
		if c.Hospitalised > s.PeakHospitalised {
			s.PeakHospitalised, s.PeakHospitalisedStep = c.Hospitalised, c.Step
		}
		if capacity > 0 && c.Hospitalised > capacity {
			s.StepsOverCapacity++
		}
		if s.Ended == 0 && c.Active() == 0 {
			s.Ended = c.Step
		}
		final = c
	}

	s.Recovered = final.Recovered
	s.Dead = final.Dead
	if initial.Susceptible > 0 {
		s.AttackRate = float64(initial.Susceptible-final.Susceptible) / float64(initial.Susceptible)
	}
	return s
}

// Format renders s as a short human-readable block.
func (s Summary) Format(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s people over %s steps\n", name, humanize.Comma(int64(s.Population)), humanize.Comma(int64(s.Steps)))
	fmt.Fprintf(&b, "  peak infected      %s (step %d)\n", humanize.Comma(int64(s.PeakInfected)), s.PeakInfectedStep)
	fmt.Fprintf(&b, "  peak hospitalised  %s (step %d)\n", humanize.Comma(int64(s.PeakHospitalised)), s.PeakHospitalisedStep)
	fmt.Fprintf(&b, "  recovered          %s\n", humanize.Comma(int64(s.Recovered)))
	fmt.Fprintf(&b, "  dead               %s\n", humanize.Comma(int64(s.Dead)))
	fmt.Fprintf(&b, "  attack rate        %s%%\n", humanize.FtoaWithDigits(s.AttackRate*100, 2))
	if s.StepsOverCapacity > 0 {
		fmt.Fprintf(&b, "  over capacity      %s\n", english.Plural(s.StepsOverCapacity, "step", "steps"))
	}
	if s.Ended > 0 {
		fmt.Fprintf(&b, "  ended              step %d\n", s.Ended)
	}
	return b.String()
}

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"step", "S", "E", "I", "H", "R", "D"}

// WriteCSV writes one row per record, preceded by CSVHeader.
func WriteCSV(w io.Writer, series []disease.Counts) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	row := make([]string, len(CSVHeader))
	for _, c := range series {
		row[0] = strconv.Itoa(c.Step)
		for i, st := range disease.States() {
			row[i+1] = strconv.Itoa(c.Of(st))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
