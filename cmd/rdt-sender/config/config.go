// Package config defines the YAML-overridable tunables for rdt-sender.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/aetherflow/rdt-sender/internal/rdt/telemetry"
)

// Config holds every tunable the sender's constants (spec §6) allow an
// operator to override.
type Config struct {
	RTO     RTOConfig        `yaml:"RTO"`
	Window  WindowConfig     `yaml:"Window"`
	Log     LogConfig        `yaml:"Log"`
	CSV     CSVConfig        `yaml:"CSV"`
	Tracing telemetry.Config `yaml:"Tracing"`

	// PacerRate bounds the Fill step's send rate in packets/second,
	// smoothing bursts alongside CWND admission.
	PacerRate float64 `yaml:"PacerRate"`
}

// RTOConfig overrides the RTO estimator's bounds and starting value.
type RTOConfig struct {
	Initial time.Duration `yaml:"Initial"`
	Min     time.Duration `yaml:"Min"`
	Max     time.Duration `yaml:"Max"`
}

// WindowConfig overrides the congestion controller's size limits.
type WindowConfig struct {
	MaxWindow       int `yaml:"MaxWindow"`
	InitialSSThresh int `yaml:"InitialSSThresh"`
}

// LogConfig controls the zap logger's verbosity.
type LogConfig struct {
	Level string `yaml:"Level"` // debug, info, warn, error
	Dev   bool   `yaml:"Dev"`
}

// CSVConfig controls the optional CWND trace file.
type CSVConfig struct {
	Enable bool   `yaml:"Enable"`
	Path   string `yaml:"Path"`
}

// DefaultConfig returns the constants spec.md fixes, as the fallback used
// when no YAML file is given or the file is absent.
func DefaultConfig() *Config {
	return &Config{
		RTO: RTOConfig{
			Initial: 3000 * time.Millisecond,
			Min:     100 * time.Millisecond,
			Max:     6000 * time.Millisecond,
		},
		Window: WindowConfig{
			MaxWindow:       100,
			InitialSSThresh: 64,
		},
		Log: LogConfig{
			Level: "info",
			Dev:   false,
		},
		CSV: CSVConfig{
			Enable: true,
			Path:   "CWND.csv",
		},
		Tracing:   *telemetry.DefaultConfig(),
		PacerRate: 2000,
	}
}

// Load reads a YAML override file at path, applying its fields on top of
// DefaultConfig. A missing file is not an error: it falls back to the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
