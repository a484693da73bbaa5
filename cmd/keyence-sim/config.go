package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kswx/keyence-go/pkg/session"
)

// Config is the simulator configuration file.
//
//	address: ":8500"
//	protocol:
//	  trigger_obj: T2
//	delay: 20ms
//	objects:
//	  - [120.5, -40, 310, 0, 0, 90]
//	simulate:
//	  interval: 2s
//	  max_objects: 3
type Config struct {
	Address  string                 `yaml:"address"`
	Protocol session.ProtocolConfig `yaml:"protocol"`

	// Delay is applied before every reply.
	Delay time.Duration `yaml:"delay"`

	// Objects are the poses reported until the simulation changes them.
	Objects [][]float64 `yaml:"objects"`

	Simulate SimulationConfig `yaml:"simulate"`
}

// SimulationConfig controls the synthetic detection loop.
type SimulationConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	MaxObjects int           `yaml:"max_objects"`
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		Address: fmt.Sprintf(":%d", session.DefaultPort),
		Simulate: SimulationConfig{
			Interval:   2 * time.Second,
			MaxObjects: 3,
		},
	}
}

// loadConfig reads path on top of DefaultConfig. An empty path returns the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := cfg.poses(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Simulate.Enabled && cfg.Simulate.Interval <= 0 {
		return cfg, fmt.Errorf("%s: simulate.interval must be positive", path)
	}
	return cfg, nil
}

// poses converts the configured objects to pose records.
func (c Config) poses() ([][6]float64, error) {
	out := make([][6]float64, len(c.Objects))
	for i, obj := range c.Objects {
		if len(obj) != 6 {
			return nil, fmt.Errorf("objects[%d]: want 6 values (x y z rx ry rz), got %d", i, len(obj))
		}
		copy(out[i][:], obj)
	}
	return out, nil
}

// slogLevel maps the -log-level flag to a slog level.
func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
