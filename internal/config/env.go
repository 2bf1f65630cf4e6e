package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/talgya/seihrd/internal/engine"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SEIHRD_"

// envOverrides holds the environment variables that may override a config
// file. Unset variables leave the file or default value untouched.
type envOverrides struct {
	Seed     *int64  `env:"SEED"`
	Steps    *int    `env:"STEPS"`
	Workers  *int    `env:"WORKERS"`
	Streams  *string `env:"STREAMS"`
	DBPath   *string `env:"DB_PATH"`
	APIPort  *int    `env:"API_PORT"`
	AdminKey *string `env:"ADMIN_KEY"`
	LogLevel *string `env:"LOG_LEVEL"`
	LogFmt   *string `env:"LOG_FORMAT"`
}

// applyEnv overlays SEIHRD_* variables onto cfg. A nil environ reads the
// process environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	var raw envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if raw.Seed != nil {
		cfg.Seed = *raw.Seed
	}
	if raw.Steps != nil {
		cfg.Steps = *raw.Steps
	}
	if raw.Workers != nil {
		cfg.Workers = *raw.Workers
	}
	if raw.Streams != nil {
		mode, err := engine.ParseStreamMode(*raw.Streams)
		if err != nil {
			return fmt.Errorf("parse env: %sSTREAMS: %w", EnvPrefix, err)
		}
		cfg.Streams = mode
	}
	if raw.DBPath != nil {
		cfg.DBPath = strings.TrimSpace(*raw.DBPath)
	}
	if raw.APIPort != nil {
		cfg.APIPort = *raw.APIPort
	}
	if raw.AdminKey != nil {
		cfg.AdminKey = strings.TrimSpace(*raw.AdminKey)
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.TrimSpace(*raw.LogLevel)
	}
	if raw.LogFmt != nil {
		cfg.LogFormat = strings.TrimSpace(*raw.LogFmt)
	}
	return nil
}

// LoadWithEnv is Load with an explicit environment instead of the process one.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}
