package engine

import (
	"fmt"
	"strings"

	"github.com/talgya/seihrd/internal/contact"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/entropy"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/progression"
	"github.com/talgya/seihrd/internal/simerr"
	"github.com/talgya/seihrd/internal/transmission"
)

// StreamMode selects how random draws are assigned to decisions.
type StreamMode uint8

const (
	// StreamShared consumes one seeded stream strictly in evaluation order.
	StreamShared StreamMode = iota
	// StreamKeyed derives a stream per (step, individual, operation); required
	// for Workers > 1.
	StreamKeyed
)

func (m StreamMode) String() string {
	switch m {
	case StreamShared:
		return "shared"
	case StreamKeyed:
		return "keyed"
	}
	return fmt.Sprintf("StreamMode(%d)", uint8(m))
}

// ParseStreamMode accepts "shared" or "keyed".
func ParseStreamMode(v string) (StreamMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "shared":
		return StreamShared, nil
	case "keyed":
		return StreamKeyed, nil
	}
	return 0, simerr.Invalid("streams", v, "must be shared or keyed")
}

// Config is everything a run needs besides the population.
type Config struct {
	Steps int   `json:"steps"`
	Seed  int64 `json:"seed"`

	Contact      contact.Generator  `json:"contact"`
	Transmission transmission.Model `json:"transmission"`
	Progression  progression.Params `json:"progression"`

	Streams StreamMode `json:"streams"`
	Workers int        `json:"workers"` // 0 or 1 runs single-threaded

	// LogEvery emits a step report every LogEvery steps (0 disables).
	LogEvery int `json:"log_every"`

	// OnStep is called after each step is committed. The population must be
	// treated as read-only.
	OnStep func(step int, pop *population.Population, counts disease.Counts) `json:"-"`
}

func (c Config) workers() int {
	return max(1, c.Workers)
}

func (c Config) streams() entropy.Streams {
	if c.Streams == StreamKeyed {
		return entropy.NewKeyed(c.Seed)
	}
	return entropy.NewShared(c.Seed)
}

// Validate checks the run configuration against pop.
func (c Config) Validate(pop *population.Population) error {
	if c.Steps < 1 {
		return simerr.Invalid("steps", c.Steps, "must be positive")
	}
	if err := simerr.NonNegative("workers", c.Workers); err != nil {
		return err
	}
	if err := simerr.NonNegative("log_every", c.LogEvery); err != nil {
		return err
	}
	switch c.Streams {
	case StreamShared:
		if c.Workers > 1 {
			return simerr.Invalid("workers", c.Workers, "parallel runs require keyed streams")
		}
	case StreamKeyed:
	default:
		return simerr.Invalid("streams", c.Streams, "unknown stream mode")
	}
	if err := c.Contact.Validate(pop); err != nil {
		return err
	}
	if err := c.Transmission.Validate(); err != nil {
		return err
	}
	return c.Progression.Validate()
}
