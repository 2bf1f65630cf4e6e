package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/engine"
	"github.com/talgya/seihrd/internal/progression"
	"github.com/talgya/seihrd/internal/simerr"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seihrd.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefault_IsRunnable(t *testing.T) {
	cfg := Default()
	cfg.Seed = 99
	cfg.Steps = 3

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "default", scenarios[0].Name)

	pop, err := scenarios[0].Build()
	require.NoError(t, err)
	assert.Equal(t, 1000+2*1300+3*200, pop.Size())
	assert.Equal(t, 2500, len(pop.Families()))
	assert.Equal(t, 10, pop.Counts(0).Exposed)
}

func TestParse_OverlaysOnlyDefinedKeys(t *testing.T) {
	cfg, err := Parse(`
[contact]
count = 2

[disease]
p_i_to_h = 0.25
policy = "categorical"

[run]
steps = 40
streams = "keyed"
workers = 4
`)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, 2, cfg.Contact.Count)
	assert.Equal(t, def.Contact.Probability, cfg.Contact.Probability)
	assert.Equal(t, 0.25, cfg.Progression.IToH)
	assert.Equal(t, def.Progression.IToR, cfg.Progression.IToR)
	assert.Equal(t, progression.Categorical, cfg.Progression.Policy)
	assert.Equal(t, 40, cfg.Steps)
	assert.Equal(t, engine.StreamKeyed, cfg.Streams)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, def.Population.FamilyCounts, cfg.Population.FamilyCounts)
}

func TestParse_SizeAloneMeansSingles(t *testing.T) {
	cfg, err := Parse(`
[population]
size = 50
seed_count = 1
seed_state = "I"
`)
	require.NoError(t, err)
	assert.Nil(t, cfg.Population.FamilyCounts)
	assert.Equal(t, disease.Infected, cfg.Population.SeedState)

	cfg.Seed = 4
	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	pop, err := scenarios[0].Build()
	require.NoError(t, err)
	assert.Equal(t, 50, pop.Size())
	assert.Equal(t, 1, pop.LargestFamily())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "[run]\nsteeps = 3\n",
		"bad state":      "[population]\nseed_state = \"Q\"\n",
		"bad policy":     "[disease]\npolicy = \"random\"\n",
		"bad streams":    "[run]\nstreams = \"threads\"\n",
		"unknown preset": "[[scenario]]\npreset = \"lockdown\"\n",
		"nameless":       "[[scenario]]\ncontact_count = 1\n",
		"syntax":         "[run\n",
	}
	for name, text := range cases {
		_, err := Parse(text)
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnv_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[run]
seed = 11
steps = 20

[storage]
db_path = "runs.db"
`)
	cfg, err := LoadWithEnv(path, map[string]string{
		"SEIHRD_STEPS":      "30",
		"SEIHRD_ADMIN_KEY":  " secret ",
		"SEIHRD_LOG_FORMAT": "json",
		"STEPS":             "999",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), cfg.Seed)
	assert.Equal(t, 30, cfg.Steps)
	assert.Equal(t, "runs.db", cfg.DBPath)
	assert.Equal(t, "secret", cfg.AdminKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, Default().APIPort, cfg.APIPort)
}

func TestLoadWithEnv_Errors(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)

	_, err = LoadWithEnv("", map[string]string{"SEIHRD_WORKERS": "many"})
	assert.Error(t, err)

	_, err = LoadWithEnv("", map[string]string{"SEIHRD_STREAMS": "threads"})
	assert.ErrorIs(t, err, simerr.ErrInvalidParameter)
}

func TestScenarios_PresetsAndOverrides(t *testing.T) {
	cfg, err := Parse(`
[run]
seed = 7
steps = 100

[[scenario]]
preset = "harsh-isolation"

[[scenario]]
name = "custom"
preset = "no-isolation"
contact_probability = 0.25
steps = 12

[[scenario]]
preset = "extreme-isolation"
`)
	require.NoError(t, err)

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 3)

	harsh := scenarios[0]
	assert.Equal(t, "harsh-isolation", harsh.Name)
	assert.Equal(t, 2, harsh.Engine.Contact.Count)
	assert.InDelta(t, 1.0/7, harsh.Engine.Contact.Probability, 1e-12)
	assert.Equal(t, 100, harsh.Engine.Steps)

	custom := scenarios[1]
	assert.Equal(t, "custom", custom.Name)
	assert.Equal(t, 5, custom.Engine.Contact.Count)
	assert.Equal(t, 0.25, custom.Engine.Contact.Probability)
	assert.Equal(t, 12, custom.Engine.Steps)

	assert.Equal(t, 1000, scenarios[2].Engine.Steps)
	for _, s := range scenarios {
		assert.Equal(t, int64(7), s.Engine.Seed)
	}
}

func TestScenarios_ZeroSeedIsSharedAcrossScenarios(t *testing.T) {
	cfg, err := Default().WithPreset("all")
	require.NoError(t, err)
	require.Len(t, cfg.ScenarioOverrides, len(Presets()))

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	seed := scenarios[0].Engine.Seed
	assert.NotZero(t, seed)
	for _, s := range scenarios {
		assert.Equal(t, seed, s.Engine.Seed, s.Name)
	}

	_, err = Default().WithPreset("lockdown")
	assert.Error(t, err)
}

func TestScenario_SameSeedSamePopulation(t *testing.T) {
	cfg := Default()
	cfg.Seed = 5
	cfg.Population.FamilyCounts = nil
	cfg.Population.Size = 300
	cfg.Population.SizeWeights = []float64{1, 1, 1}
	s, err := cfg.Scenarios()
	require.NoError(t, err)

	a, err := s[0].Build()
	require.NoError(t, err)
	b, err := s[0].Build()
	require.NoError(t, err)
	assert.Equal(t, a.Families(), b.Families())
	assert.Equal(t, a.Outcomes(), b.Outcomes())
}

func TestScenario_Run(t *testing.T) {
	cfg := Default()
	cfg.Seed = 3
	cfg.Steps = 5
	cfg.LogEvery = 0
	s, err := cfg.Scenarios()
	require.NoError(t, err)

	res, err := s[0].Run()
	require.NoError(t, err)
	assert.Len(t, res.Series, 5)
	assert.Equal(t, res.Initial.Total(), res.Final().Total())
}
