package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the executor's timing bounds. Durations are written as Go
// duration strings in YAML ("10s", "100ms").
type Config struct {
	// Address is reported by every pool event.
	Address string `yaml:"address"`

	// EventTimeout bounds a waitForEvent operation.
	EventTimeout time.Duration `yaml:"eventTimeout"`

	// PollInterval is how often waitForEvent re-checks the recorder.
	PollInterval time.Duration `yaml:"pollInterval"`

	// JoinTimeout bounds joining one actor, in waitForThread and in teardown.
	JoinTimeout time.Duration `yaml:"joinTimeout"`

	// WakeInterval is the periodic wake-up of an idle actor.
	WakeInterval time.Duration `yaml:"wakeInterval"`
}

// DefaultAddress is the address pools report when none is configured.
const DefaultAddress = "localhost:27017"

// DefaultConfig returns the default timing bounds.
func DefaultConfig() Config {
	return Config{
		Address:      DefaultAddress,
		EventTimeout: 10 * time.Second,
		PollInterval: 100 * time.Millisecond,
		JoinTimeout:  5 * time.Second,
		WakeInterval: 10 * time.Second,
	}
}

// LoadConfig reads a YAML config file. Keys that are absent keep their
// default; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every bound is positive and that an event wait gets
// at least one full poll interval.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	bounds := []struct {
		name string
		d    time.Duration
	}{
		{"eventTimeout", c.EventTimeout},
		{"pollInterval", c.PollInterval},
		{"joinTimeout", c.JoinTimeout},
		{"wakeInterval", c.WakeInterval},
	}
	for _, b := range bounds {
		if b.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", b.name, b.d)
		}
	}
	if c.EventTimeout < c.PollInterval {
		return fmt.Errorf("eventTimeout (%s) must not be shorter than pollInterval (%s)", c.EventTimeout, c.PollInterval)
	}
	return nil
}
