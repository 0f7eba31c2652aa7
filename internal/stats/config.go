package stats

import "time"

// Config defines configuration for the stats collector
type Config struct {
	// Inbox configuration
	InboxBufferSize  int           `toml:"inbox_buffer_size"`
	InboxSendTimeout time.Duration `toml:"inbox_send_timeout"`

	// Progress is logged at this interval; zero disables it
	ProgressInterval time.Duration `toml:"progress_interval"`
}

// DefaultConfig returns default stats collector configuration
func DefaultConfig() Config {
	return Config{
		InboxBufferSize:  1000,
		InboxSendTimeout: 5 * time.Second,
		ProgressInterval: 5 * time.Second,
	}
}
