package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/msgaudit/internal/audit"
	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/db"
	"github.com/livinlefevreloca/msgaudit/internal/directory"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
	"github.com/livinlefevreloca/msgaudit/internal/report"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

// Source kinds
const (
	SourceSQL = "sql"
	SourceCSV = "csv"
)

// Config represents the application configuration
type Config struct {
	Database   db.Config        `toml:"database"`
	Source     SourceConfig     `toml:"source"`
	Directory  directory.Config `toml:"directory"`
	Payload    PayloadConfig    `toml:"payload"`
	Classifier classify.Config  `toml:"classifier"`
	Output     report.Config    `toml:"output"`
	Engine     audit.Config     `toml:"engine"`
	Logging    LoggingConfig    `toml:"logging"`
}

// SourceConfig selects where records are read from
type SourceConfig struct {
	Kind    string `toml:"kind"`
	CSVPath string `toml:"csv_path"`
}

// PayloadConfig holds payload selection and decoding limits
type PayloadConfig struct {
	Selection       source.Selection `toml:"selection"`
	MaxDecodedBytes int64            `toml:"max_decoded_bytes"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.DefaultConfig(),
		Source: SourceConfig{
			Kind: SourceSQL,
		},
		Directory: directory.DefaultConfig(),
		Payload: PayloadConfig{
			Selection:       source.PrimaryFirst,
			MaxDecodedBytes: payload.DefaultMaxDecodedBytes,
		},
		Classifier: classify.DefaultConfig(),
		Output:     report.DefaultConfig(),
		Engine:     audit.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key: %s", undecoded[0])
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	return LoadFromFile(configPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Source validation
	switch c.Source.Kind {
	case SourceSQL:
	case SourceCSV:
		if c.Source.CSVPath == "" {
			return fmt.Errorf("source csv_path must be specified for kind %q", SourceCSV)
		}
	default:
		return fmt.Errorf("unsupported source kind: %s (must be sql or csv)", c.Source.Kind)
	}

	// Cleanup statements name the table and id column for either source
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.Directory.Validate(); err != nil {
		return err
	}

	// Payload validation
	if err := c.Payload.Selection.Validate(); err != nil {
		return fmt.Errorf("payload selection: %w", err)
	}
	if c.Payload.MaxDecodedBytes < 0 {
		return fmt.Errorf("payload max_decoded_bytes must not be negative")
	}

	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}
