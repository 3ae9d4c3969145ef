// Package config loads the codesentry configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nkarpov/codesentry/internal/alert"
)

// EnvHome overrides the state directory; it holds the database and the
// default config file.
const EnvHome = "CODESENTRY_HOME"

// MonitorConfig tunes the integrity monitor.
type MonitorConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds"`
	WatchPaths      []string `yaml:"watch_paths"`
}

// Interval returns the poll interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// TracerConfig restricts which packages the call tracer records.
type TracerConfig struct {
	Modules []string `yaml:"modules"`
}

// GraphConfig tunes call graph construction.
type GraphConfig struct {
	DefaultDepth  int     `yaml:"default_depth"`
	Simplify      bool    `yaml:"simplify"`
	MinImportance float64 `yaml:"min_importance"`
}

// Config holds all configurable parameters.
type Config struct {
	DatabasePath string              `yaml:"database_path"`
	Monitor      MonitorConfig       `yaml:"monitor"`
	Tracer       TracerConfig        `yaml:"tracer"`
	Graph        GraphConfig         `yaml:"graph"`
	Alerts       []alert.AlertConfig `yaml:"alerts"`
}

// Home returns the state directory: $CODESENTRY_HOME when set, otherwise
// ~/.codesentry.
func Home() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codesentry"
	}
	return filepath.Join(home, ".codesentry")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: filepath.Join(Home(), "codesentry.db"),
		Monitor: MonitorConfig{
			IntervalSeconds: 5,
		},
		Graph: GraphConfig{
			DefaultDepth:  2,
			MinImportance: 0.3,
		},
	}
}

// Load reads configuration from a YAML file. Empty path falls back to
// <home>/config.yaml. Missing file returns defaults. Invalid YAML returns
// an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(Home(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Monitor.IntervalSeconds < 0 {
		return nil, fmt.Errorf("config: monitor.interval_seconds must not be negative")
	}
	return cfg, nil
}
