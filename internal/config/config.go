// ABOUTME: Configuration loading and parsing for threadline
// ABOUTME: Supports YAML files with environment variable expansion and defaults

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/2389/threadline/internal/poll"
)

// Config represents the complete threadline configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Polls    PollsConfig    `yaml:"polls"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// PollsConfig bounds poll creation input
type PollsConfig struct {
	MinOptions        int `yaml:"min_options"`
	MaxOptions        int `yaml:"max_options"`
	MaxQuestionLength int `yaml:"max_question_length"`
	MaxOptionLength   int `yaml:"max_option_length"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	limits := poll.DefaultLimits()
	return &Config{
		Database: DatabaseConfig{Path: "threadline.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Polls: PollsConfig{
			MinOptions:        limits.MinOptions,
			MaxOptions:        limits.MaxOptions,
			MaxQuestionLength: limits.MaxQuestionLen,
			MaxOptionLength:   limits.MaxOptionLen,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config with defaults applied. Environment variables in the format
// ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and coherent.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	if c.Polls.MinOptions < 2 {
		return fmt.Errorf("polls.min_options must be at least 2")
	}
	if c.Polls.MaxOptions < c.Polls.MinOptions {
		return fmt.Errorf("polls.max_options must be >= polls.min_options")
	}
	if c.Polls.MaxQuestionLength <= 0 || c.Polls.MaxOptionLength <= 0 {
		return fmt.Errorf("polls length limits must be positive")
	}

	return nil
}

// PollLimits converts the poll bounds into the poll package's Limits.
func (c *Config) PollLimits() poll.Limits {
	return poll.Limits{
		MinOptions:     c.Polls.MinOptions,
		MaxOptions:     c.Polls.MaxOptions,
		MaxQuestionLen: c.Polls.MaxQuestionLength,
		MaxOptionLen:   c.Polls.MaxOptionLength,
	}
}
