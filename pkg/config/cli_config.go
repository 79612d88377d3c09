// Package config loads the optional YAML configuration file of the dagstudio CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/dagstudio/pkg/log"
	"gopkg.in/yaml.v3"
)

// CLIConfig holds defaults for flags the user did not pass. Zero values mean unset.
type CLIConfig struct {
	APIURL       string        `yaml:"api_url"`
	StateURL     string        `yaml:"state_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HistoryLimit int           `yaml:"history_limit"`
	LogLevel     string        `yaml:"log_level"`
	Tracing      bool          `yaml:"tracing"`
}

// LoadCLIConfig reads the YAML file at path. An empty path yields an empty
// config; a path that does not exist is an error.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

func (c *CLIConfig) validate() error {
	if c.PollInterval < 0 {
		return errors.New("poll_interval must not be negative")
	}

	if c.HistoryLimit < 0 || c.HistoryLimit > 100 {
		return errors.New("history_limit must be between 0 and 100")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	return nil
}
