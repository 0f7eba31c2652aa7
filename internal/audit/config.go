package audit

import (
	"fmt"
	"time"
)

// Policy decides what a record failure does to the batch
type Policy string

const (
	// PolicyAbort stops the batch at the first failed record
	PolicyAbort Policy = "abort"
	// PolicySkip records the failure, emits an undecodable line and continues
	PolicySkip Policy = "skip"
)

// Config defines configuration for the batch engine
type Config struct {
	Workers       int           `toml:"workers"`
	FailurePolicy Policy        `toml:"failure_policy"`
	RecordTimeout time.Duration `toml:"record_timeout"`

	// Progress reporting
	ProgressInterval time.Duration `toml:"progress_interval"`

	// Results buffered between workers and the ordered emitter
	InboxBufferSize  int           `toml:"inbox_buffer_size"`
	InboxSendTimeout time.Duration `toml:"inbox_send_timeout"`
}

// DefaultConfig returns a sequential engine that aborts on failure
func DefaultConfig() Config {
	return Config{
		Workers:          1,
		FailurePolicy:    PolicyAbort,
		RecordTimeout:    0,
		ProgressInterval: 5 * time.Second,
		InboxBufferSize:  64,
		InboxSendTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("engine workers must be at least 1")
	}
	if c.FailurePolicy != PolicyAbort && c.FailurePolicy != PolicySkip {
		return fmt.Errorf("engine failure_policy must be %q or %q, got %q", PolicyAbort, PolicySkip, c.FailurePolicy)
	}
	if c.RecordTimeout < 0 {
		return fmt.Errorf("engine record_timeout must not be negative")
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("engine progress_interval must not be negative")
	}
	if c.InboxBufferSize <= 0 {
		return fmt.Errorf("engine inbox_buffer_size must be positive")
	}
	return nil
}
