package config

import (
	"fmt"
	"strings"

	"github.com/talgya/seihrd/internal/engine"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
)

// Preset is a named self-isolation regime: how many non-household contacts
// an individual has and how likely they are to meet each day.
type Preset struct {
	Name               string
	ContactCount       int
	ContactProbability float64
	Steps              int // 0 keeps the configured steps
}

var presets = []Preset{
	{Name: "no-isolation", ContactCount: 5, ContactProbability: 5.0 / 7},
	{Name: "light-isolation", ContactCount: 3, ContactProbability: 5.0 / 7},
	{Name: "moderate-isolation", ContactCount: 3, ContactProbability: 1.0 / 7},
	{Name: "harsh-isolation", ContactCount: 2, ContactProbability: 1.0 / 7},
	{Name: "extreme-isolation", ContactCount: 1, ContactProbability: 1.0 / 7, Steps: 1000},
}

// Presets returns the built-in isolation regimes, least strict first.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// Scenario is one fully resolved run: a population recipe and an engine
// configuration.
type Scenario struct {
	Name       string          `json:"name"`
	Population population.Spec `json:"population"`
	Engine     engine.Config   `json:"engine"`
}

// Build constructs the scenario's population. Family sizes and seeds are
// drawn from a stream derived from the run seed, so the same seed always
// yields the same starting population.
func (s Scenario) Build() (*population.Population, error) {
	pop, err := population.Build(s.Population, entropy.Derive(s.Engine.Seed, 0, 0, entropy.OpSeeding))
	if err != nil {
		return nil, fmt.Errorf("build population for %s: %w", s.Name, err)
	}
	return pop, nil
}

// Run builds the population and runs the scenario.
func (s Scenario) Run() (*engine.Result, error) {
	pop, err := s.Build()
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(pop, s.Engine)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.Name, err)
	}
	return res, nil
}

// Base returns the configuration as a single scenario without any override.
func (c Config) Base() engine.Config {
	return engine.Config{
		Steps:        c.Steps,
		Seed:         c.Seed,
		Contact:      c.Contact,
		Transmission: c.Transmission,
		Progression:  c.Progression,
		Streams:      c.Streams,
		Workers:      c.Workers,
		LogEvery:     c.LogEvery,
	}
}

// Scenarios resolves the configured scenarios. With none configured the base
// configuration runs as a single scenario named "default". A zero seed is
// replaced once with a fresh one so every scenario shares it.
func (c Config) Scenarios() ([]Scenario, error) {
	if c.Seed == 0 {
		seed, err := entropy.NewSeed()
		if err != nil {
			return nil, err
		}
		c.Seed = seed
	}
	base := c.Base()

	if len(c.ScenarioOverrides) == 0 {
		return []Scenario{{Name: "default", Population: c.Population, Engine: base}}, nil
	}

	out := make([]Scenario, 0, len(c.ScenarioOverrides))
	for _, o := range c.ScenarioOverrides {
		s, err := o.apply(base)
		if err != nil {
			return nil, err
		}
		out = append(out, Scenario{Name: o.Name, Population: c.Population, Engine: s})
	}
	return out, nil
}

// WithPreset returns c with its scenarios replaced by the named presets.
func (c Config) WithPreset(names ...string) (Config, error) {
	c.ScenarioOverrides = nil
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			for _, p := range presets {
				c.ScenarioOverrides = append(c.ScenarioOverrides, ScenarioOverride{Name: p.Name, Preset: p.Name})
			}
			continue
		}
		p, ok := LookupPreset(name)
		if !ok {
			return Config{}, fmt.Errorf("unknown preset %q", name)
		}
		c.ScenarioOverrides = append(c.ScenarioOverrides, ScenarioOverride{Name: p.Name, Preset: p.Name})
	}
	return c, nil
}

func (o ScenarioOverride) apply(base engine.Config) (engine.Config, error) {
	cfg := base
	if o.Preset != "" {
		p, ok := LookupPreset(o.Preset)
		if !ok {
			return engine.Config{}, fmt.Errorf("scenario %q: unknown preset %q", o.Name, o.Preset)
		}
		cfg.Contact.Count = p.ContactCount
		cfg.Contact.Probability = p.ContactProbability
		if p.Steps > 0 {
			cfg.Steps = p.Steps
		}
	}
	if o.ContactCount != nil {
		cfg.Contact.Count = *o.ContactCount
	}
	if o.ContactProbability != nil {
		cfg.Contact.Probability = *o.ContactProbability
	}
	if o.Steps != nil {
		cfg.Steps = *o.Steps
	}
	return cfg, nil
}
