package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/livinlefevreloca/msgaudit/internal/audit"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Database defaults
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %s", cfg.Database.Driver)
	}
	if cfg.Database.Table != "SCHEDULED_MESSAGE" {
		t.Errorf("expected table SCHEDULED_MESSAGE, got %s", cfg.Database.Table)
	}
	if cfg.Database.Columns.ID != "SCHEDULED_MESSAGE_ID" {
		t.Errorf("expected id column SCHEDULED_MESSAGE_ID, got %s", cfg.Database.Columns.ID)
	}

	// Source and payload defaults
	if cfg.Source.Kind != SourceSQL {
		t.Errorf("expected source kind sql, got %s", cfg.Source.Kind)
	}
	if cfg.Payload.Selection != source.PrimaryFirst {
		t.Errorf("expected selection primary-first, got %s", cfg.Payload.Selection)
	}

	// Engine defaults
	if cfg.Engine.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.FailurePolicy != audit.PolicyAbort {
		t.Errorf("expected abort policy, got %s", cfg.Engine.FailurePolicy)
	}

	// Output defaults
	if cfg.Output.DigestFile != "scheduled_message_digest.csv" {
		t.Errorf("expected digest file scheduled_message_digest.csv, got %s", cfg.Output.DigestFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[database]
dsn = "/var/lib/audit/itim.db"
table = "ITIMUSER.SCHEDULED_MESSAGE"

[database.columns]
primary = "MSG"

[source]
kind = "csv"
csv_path = "export.csv"

[directory]
kind = "yaml"
yaml_path = "directory.yaml"

[payload]
selection = "fallback-first"

[classifier]
rule_type_policy = 10

[output]
dir = "out"
timezone = "UTC"

[engine]
workers = 4
failure_policy = "skip"
record_timeout = "2s"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Check overridden values
	if cfg.Database.DSN != "/var/lib/audit/itim.db" {
		t.Errorf("expected dsn override, got %s", cfg.Database.DSN)
	}
	if cfg.Database.Table != "ITIMUSER.SCHEDULED_MESSAGE" {
		t.Errorf("expected schema-qualified table, got %s", cfg.Database.Table)
	}
	if cfg.Database.Columns.Primary != "MSG" {
		t.Errorf("expected primary column MSG, got %s", cfg.Database.Columns.Primary)
	}
	if cfg.Source.CSVPath != "export.csv" {
		t.Errorf("expected csv_path export.csv, got %s", cfg.Source.CSVPath)
	}
	if cfg.Payload.Selection != source.FallbackFirst {
		t.Errorf("expected fallback-first, got %s", cfg.Payload.Selection)
	}
	if cfg.Classifier.RulePolicy != 10 {
		t.Errorf("expected rule_type_policy 10, got %d", cfg.Classifier.RulePolicy)
	}
	if cfg.Engine.Workers != 4 || cfg.Engine.FailurePolicy != audit.PolicySkip {
		t.Errorf("expected 4 workers with skip, got %d %s", cfg.Engine.Workers, cfg.Engine.FailurePolicy)
	}
	if cfg.Engine.RecordTimeout != 2*time.Second {
		t.Errorf("expected record_timeout 2s, got %v", cfg.Engine.RecordTimeout)
	}

	// Check defaults preserved
	if cfg.Database.Columns.ID != "SCHEDULED_MESSAGE_ID" {
		t.Errorf("expected default id column preserved, got %s", cfg.Database.Columns.ID)
	}
	if cfg.Classifier.RuleCategory != 2 {
		t.Errorf("expected default rule_type_category preserved, got %d", cfg.Classifier.RuleCategory)
	}
	if cfg.Output.DumpFile != "scheduled_message.dump" {
		t.Errorf("expected default dump file preserved, got %s", cfg.Output.DumpFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected loaded config to validate, got %v", err)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.toml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[engine]\nworkerz = 3\n")
	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "workerz") {
		t.Errorf("expected unknown key error naming workerz, got %v", err)
	}
}

func TestLoadFromFile_Malformed(t *testing.T) {
	path := writeConfig(t, "[engine\nworkers = 3\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Source.Kind != SourceSQL {
		t.Errorf("expected default config, got source kind %s", cfg.Source.Kind)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "unsupported source kind"},
		{"csv without path", func(c *Config) { c.Source.Kind = SourceCSV }, "csv_path"},
		{"empty driver", func(c *Config) { c.Database.Driver = "" }, "driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "dsn"},
		{"bad table", func(c *Config) { c.Database.Table = "T; DROP" }, "table"},
		{"unknown directory", func(c *Config) { c.Directory.Kind = "nis" }, "directory kind"},
		{"bad selection", func(c *Config) { c.Payload.Selection = "newest" }, "payload selection"},
		{"negative cap", func(c *Config) { c.Payload.MaxDecodedBytes = -1 }, "max_decoded_bytes"},
		{"duplicate rule types", func(c *Config) { c.Classifier.RuleProfile = c.Classifier.RulePolicy }, "distinct"},
		{"same output files", func(c *Config) { c.Output.DumpFile = c.Output.DigestFile }, "distinct"},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }, "workers"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
