package disease

// Counts is the compartment tally for one step.
type Counts struct {
	Step         int `json:"step" db:"step"`
	Susceptible  int `json:"susceptible" db:"s"`
	Exposed      int `json:"exposed" db:"e"`
	Infected     int `json:"infected" db:"i"`
	Hospitalised int `json:"hospitalised" db:"h"`
	Recovered    int `json:"recovered" db:"r"`
	Dead         int `json:"dead" db:"d"`
}

// Add counts one individual in state s.
func (c *Counts) Add(s State) {
	switch s {
	case Susceptible:
		c.Susceptible++
	case Exposed:
		c.Exposed++
	case Infected:
		c.Infected++
	case Hospitalised:
		c.Hospitalised++
	case Recovered:
		c.Recovered++
	case Dead:
		c.Dead++
	}
}

// Of returns the count for state s.
func (c Counts) Of(s State) int {
	switch s {
	case Susceptible:
		return c.Susceptible
	case Exposed:
		return c.Exposed
	case Infected:
		return c.Infected
	case Hospitalised:
		return c.Hospitalised
	case Recovered:
		return c.Recovered
	case Dead:
		return c.Dead
	}
	return 0
}

// Total is the number of individuals tallied. It equals the population size
// on every well-formed record.
func (c Counts) Total() int {
	return c.Susceptible + c.Exposed + c.Infected + c.Hospitalised + c.Recovered + c.Dead
}

// Active is the number of individuals carrying the disease (E, I or H).
func (c Counts) Active() int {
	return c.Exposed + c.Infected + c.Hospitalised
}
