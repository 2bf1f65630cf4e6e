// Package config loads run configuration from TOML files and SEIHRD_
// environment variables, and resolves it into runnable scenarios.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/talgya/seihrd/internal/contact"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/engine"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/progression"
	"github.com/talgya/seihrd/internal/transmission"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	Population   population.Spec
	Contact      contact.Generator
	Transmission transmission.Model
	Progression  progression.Params

	Steps    int
	Seed     int64 // 0 draws a fresh seed per invocation
	Streams  engine.StreamMode
	Workers  int
	LogEvery int

	DBPath    string
	APIPort   int
	AdminKey  string
	LogLevel  string
	LogFormat string // "auto", "text" or "json"

	ScenarioOverrides []ScenarioOverride
}

// ScenarioOverride varies contact structure for one named scenario. Unset
// fields inherit from the base configuration.
type ScenarioOverride struct {
	Name               string
	Preset             string
	ContactCount       *int
	ContactProbability *float64
	Steps              *int
}

// Default returns the reference UK-household parameters downscaled by 1000:
// 1000 single, 1300 two-person and 200 three-person households, with hospital
// capacity scaled to match.
func Default() Config {
	return Config{
		Population: population.Spec{
			FamilyCounts: []int{1000, 1300, 200},
			SeedCount:    10,
			SeedState:    disease.Exposed,
		},
		Contact:      contact.Generator{Count: 5, Probability: 5.0 / 7},
		Transmission: transmission.Model{Probability: 0.5},
		Progression: progression.Params{
			EToI:               1,
			DurationE:          4,
			IToH:               1.0 / 200,
			IToR:               1.0 / 21,
			HToR:               1.0 / 35,
			HToD:               0.16 / 35,
			MinIToR:            7,
			MinHToR:            14,
			MinHToD:            5,
			HospitalCapacity:   2,
			OverloadMultiplier: 3,
		},
		Steps:     365,
		LogEvery:  30,
		DBPath:    "data/seihrd.db",
		APIPort:   8080,
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	Population struct {
		Size         int       `toml:"size"`
		FamilySizes  []int     `toml:"family_sizes"`
		FamilyCounts []int     `toml:"family_counts"`
		SizeWeights  []float64 `toml:"size_weights"`
		SeedIDs      []int     `toml:"seed_ids"`
		SeedCount    int       `toml:"seed_count"`
		SeedState    string    `toml:"seed_state"`
	} `toml:"population"`

	Contact struct {
		Count       int     `toml:"count"`
		Probability float64 `toml:"probability"`
	} `toml:"contact"`

	Disease struct {
		TransmissionProbability float64 `toml:"transmission_probability"`
		ExposedInfectious       bool    `toml:"exposed_infectious"`
		EToI                    float64 `toml:"p_e_to_i"`
		IToH                    float64 `toml:"p_i_to_h"`
		IToR                    float64 `toml:"p_i_to_r"`
		IToD                    float64 `toml:"p_i_to_d"`
		HToR                    float64 `toml:"p_h_to_r"`
		HToD                    float64 `toml:"p_h_to_d"`
		DurationE               int     `toml:"duration_e"`
		MinE                    int     `toml:"min_e"`
		MinIToR                 int     `toml:"min_i_to_r"`
		MinHToR                 int     `toml:"min_h_to_r"`
		MinHToD                 int     `toml:"min_h_to_d"`
		HospitalCapacity        int     `toml:"hospital_capacity"`
		OverloadMultiplier      float64 `toml:"overload_multiplier"`
		Policy                  string  `toml:"policy"`
	} `toml:"disease"`

	Run struct {
		Steps    int    `toml:"steps"`
		Seed     int64  `toml:"seed"`
		Streams  string `toml:"streams"`
		Workers  int    `toml:"workers"`
		LogEvery int    `toml:"log_every"`
	} `toml:"run"`

	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`

	API struct {
		Port     int    `toml:"port"`
		AdminKey string `toml:"admin_key"`
	} `toml:"api"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Scenario []struct {
		Name               string   `toml:"name"`
		Preset             string   `toml:"preset"`
		ContactCount       *int     `toml:"contact_count"`
		ContactProbability *float64 `toml:"contact_probability"`
		Steps              *int     `toml:"steps"`
	} `toml:"scenario"`
}

// Load reads path (if non-empty) over Default and then applies SEIHRD_*
// overrides from the process environment.
func Load(path string) (Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var err error
		cfg, err = loadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return overlay(cfg, raw, meta)
}

// Parse decodes TOML text over Default. Environment overrides are not applied.
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("parse config: unknown key %q", undecoded[0].String())
	}
	return overlay(Default(), raw, meta)
}

func overlay(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	pop := &cfg.Population
	if meta.IsDefined("population", "size") {
		pop.Size = raw.Population.Size
	}
	// A layout given in the file replaces the default layout entirely.
	if meta.IsDefined("population", "family_sizes") || meta.IsDefined("population", "family_counts") ||
		meta.IsDefined("population", "size_weights") {
		pop.FamilySizes = raw.Population.FamilySizes
		pop.FamilyCounts = raw.Population.FamilyCounts
		pop.SizeWeights = raw.Population.SizeWeights
	} else if meta.IsDefined("population", "size") {
		// Size alone means single-member households.
		pop.FamilyCounts = nil
	}
	if meta.IsDefined("population", "seed_ids") {
		pop.SeedIDs = raw.Population.SeedIDs
	}
	if meta.IsDefined("population", "seed_count") {
		pop.SeedCount = raw.Population.SeedCount
	}
	if meta.IsDefined("population", "seed_state") {
		s, err := disease.ParseState(raw.Population.SeedState)
		if err != nil {
			return Config{}, fmt.Errorf("load config: population.seed_state: %w", err)
		}
		pop.SeedState = s
	}

	if meta.IsDefined("contact", "count") {
		cfg.Contact.Count = raw.Contact.Count
	}
	if meta.IsDefined("contact", "probability") {
		cfg.Contact.Probability = raw.Contact.Probability
	}

	d := raw.Disease
	if meta.IsDefined("disease", "transmission_probability") {
		cfg.Transmission.Probability = d.TransmissionProbability
	}
	if meta.IsDefined("disease", "exposed_infectious") {
		cfg.Transmission.ExposedInfectious = d.ExposedInfectious
	}
	prog := &cfg.Progression
	for key, set := range map[string]func(){
		"p_e_to_i":            func() { prog.EToI = d.EToI },
		"p_i_to_h":            func() { prog.IToH = d.IToH },
		"p_i_to_r":            func() { prog.IToR = d.IToR },
		"p_i_to_d":            func() { prog.IToD = d.IToD },
		"p_h_to_r":            func() { prog.HToR = d.HToR },
		"p_h_to_d":            func() { prog.HToD = d.HToD },
		"duration_e":          func() { prog.DurationE = d.DurationE },
		"min_e":               func() { prog.MinE = d.MinE },
		"min_i_to_r":          func() { prog.MinIToR = d.MinIToR },
		"min_h_to_r":          func() { prog.MinHToR = d.MinHToR },
		"min_h_to_d":          func() { prog.MinHToD = d.MinHToD },
		"hospital_capacity":   func() { prog.HospitalCapacity = d.HospitalCapacity },
		"overload_multiplier": func() { prog.OverloadMultiplier = d.OverloadMultiplier },
	} {
		if meta.IsDefined("disease", key) {
			set()
		}
	}
	if meta.IsDefined("disease", "policy") {
		policy, err := progression.ParsePolicy(d.Policy)
		if err != nil {
			return Config{}, fmt.Errorf("load config: disease.policy: %w", err)
		}
		prog.Policy = policy
	}

	if meta.IsDefined("run", "steps") {
		cfg.Steps = raw.Run.Steps
	}
	if meta.IsDefined("run", "seed") {
		cfg.Seed = raw.Run.Seed
	}
	if meta.IsDefined("run", "streams") {
		mode, err := engine.ParseStreamMode(raw.Run.Streams)
		if err != nil {
			return Config{}, fmt.Errorf("load config: run.streams: %w", err)
		}
		cfg.Streams = mode
	}
	if meta.IsDefined("run", "workers") {
		cfg.Workers = raw.Run.Workers
	}
	if meta.IsDefined("run", "log_every") {
		cfg.LogEvery = raw.Run.LogEvery
	}

	if meta.IsDefined("storage", "db_path") {
		cfg.DBPath = strings.TrimSpace(raw.Storage.DBPath)
	}
	if meta.IsDefined("api", "port") {
		cfg.APIPort = raw.API.Port
	}
	if meta.IsDefined("api", "admin_key") {
		cfg.AdminKey = strings.TrimSpace(raw.API.AdminKey)
	}
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.LogFormat = strings.TrimSpace(raw.Log.Format)
	}

	for i, s := range raw.Scenario {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = strings.TrimSpace(s.Preset)
		}
		if name == "" {
			return Config{}, fmt.Errorf("load config: scenario %d needs a name or preset", i)
		}
		if s.Preset != "" {
			if _, ok := LookupPreset(s.Preset); !ok {
				return Config{}, fmt.Errorf("load config: scenario %q: unknown preset %q", name, s.Preset)
			}
		}
		cfg.ScenarioOverrides = append(cfg.ScenarioOverrides, ScenarioOverride{
			Name:               name,
			Preset:             strings.TrimSpace(s.Preset),
			ContactCount:       s.ContactCount,
			ContactProbability: s.ContactProbability,
			Steps:              s.Steps,
		})
	}
	return cfg, nil
}
