package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
)

// Config represents the planproof configuration
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Canonicalization and comparison
	Validator ValidatorConfig `yaml:"validator"`

	// Candidate validation and selection
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// Cost collaborator
	Cost CostConfig `yaml:"cost"`
}

// ValidatorConfig holds validator settings
type ValidatorConfig struct {
	Mode                 string   `yaml:"mode"`                    // "strict", "relaxed", "heuristic"
	MaxRounds            int      `yaml:"max_rounds"`              // fixpoint round bound
	MaxDepth             int      `yaml:"max_depth"`               // plan depth bound
	InListExpansionLimit int      `yaml:"in_list_expansion_limit"` // 0 expands every IN list
	DisabledRules        []string `yaml:"disabled_rules"`
	EnabledRules         []string `yaml:"enabled_rules"` // optional rules, e.g. commute-set-ops
}

// OptimizerConfig holds candidate selection settings
type OptimizerConfig struct {
	MaxCandidates       int           `yaml:"max_candidates"`
	ValidationTimeout   time.Duration `yaml:"validation_timeout"`
	Selection           string        `yaml:"selection"` // "best_cost", "first_valid", "conservative"
	MinImprovementRatio float64       `yaml:"min_improvement_ratio"`
	MinConfidence       float64       `yaml:"min_confidence"`
	Workers             int           `yaml:"workers"`
}

// CostConfig holds cost estimation settings
type CostConfig struct {
	Driver  string        `yaml:"driver"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Validator: ValidatorConfig{
			Mode:      "strict",
			MaxRounds: 32,
			MaxDepth:  256,
		},
		Optimizer: OptimizerConfig{
			MaxCandidates:       5,
			ValidationTimeout:   10 * time.Second,
			Selection:           "best_cost",
			MinImprovementRatio: 1.2,
			MinConfidence:       1.0,
			Workers:             4,
		},
		Cost: CostConfig{
			Driver:  "postgres",
			Timeout: 5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Unknown keys are
// rejected; keys the file omits keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.ConfigError(path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, verrors.ConfigError(path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, verrors.ConfigError(path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from PLANPROOF_* environment variables.
// Malformed values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if val := getenv("PLANPROOF_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := getenv("PLANPROOF_MODE"); val != "" {
		c.Validator.Mode = val
	}
	if val := getenv("PLANPROOF_MAX_ROUNDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Validator.MaxRounds = n
		}
	}
	if val := getenv("PLANPROOF_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Optimizer.Workers = n
		}
	}
	if val := getenv("PLANPROOF_COST_DSN"); val != "" {
		c.Cost.DSN = val
	}
}

// LoadFromFlags overrides settings with command-line flag values. Empty
// values keep the current setting.
func (c *Config) LoadFromFlags(logLevel, logFormat, mode, dsn string) {
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if logFormat != "" {
		c.LogFormat = logFormat
	}
	if mode != "" {
		c.Validator.Mode = mode
	}
	if dsn != "" {
		c.Cost.DSN = dsn
	}
}

// Log returns the logging section in the form internal/log expects.
func (c *Config) Log() log.Config {
	return log.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	if err := c.validateValidator(); err != nil {
		return fmt.Errorf("invalid validator configuration: %w", err)
	}

	if err := c.validateOptimizer(); err != nil {
		return fmt.Errorf("invalid optimizer configuration: %w", err)
	}

	if c.Cost.Timeout <= 0 {
		return fmt.Errorf("cost timeout must be positive")
	}

	return nil
}

func (c *Config) validateValidator() error {
	v := c.Validator

	switch v.Mode {
	case "strict", "relaxed", "heuristic":
	default:
		return fmt.Errorf("invalid mode: %s", v.Mode)
	}

	if v.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be at least 1")
	}

	if v.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1")
	}

	if v.InListExpansionLimit < 0 {
		return fmt.Errorf("in-list expansion limit cannot be negative")
	}

	return nil
}

func (c *Config) validateOptimizer() error {
	o := c.Optimizer

	switch o.Selection {
	case "best_cost", "first_valid", "conservative":
	default:
		return fmt.Errorf("invalid selection strategy: %s", o.Selection)
	}

	if o.MaxCandidates < 0 {
		return fmt.Errorf("max candidates cannot be negative")
	}

	if o.ValidationTimeout <= 0 {
		return fmt.Errorf("validation timeout must be positive")
	}

	if o.MinImprovementRatio < 1.0 {
		return fmt.Errorf("min improvement ratio must be at least 1.0")
	}

	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0 and 1")
	}

	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	return nil
}
