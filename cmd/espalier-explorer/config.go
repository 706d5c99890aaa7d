package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the explorer configuration. Flags override the file.
type Config struct {
	Root       string    `yaml:"root"`
	ShowHidden bool      `yaml:"show_hidden"`
	DebounceMS int       `yaml:"debounce_ms"`
	Log        LogConfig `yaml:"log"`
}

// LogConfig holds file logging configuration. An empty file disables
// logging entirely; stdout and stderr are off limits while the TUI runs.
type LogConfig struct {
	File  string     `yaml:"file"`
	Level slog.Level `yaml:"level"`
}

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		Root:       ".",
		DebounceMS: 100,
	}
}

// DebounceDuration converts the configured debounce to a Duration.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.DebounceMS, validation.Min(0), validation.Max(10000)),
	)
}

// loadConfig loads configuration from a YAML file with environment
// variable expansion.
func loadConfig(filename string, target *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := target.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}
