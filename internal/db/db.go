package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	driver string
}

// Config holds database connection configuration
type Config struct {
	Driver          string        `toml:"driver"`
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time"`

	// Table layout of the scheduled message table
	Table   string  `toml:"table"`
	Columns Columns `toml:"columns"`
}

// Columns names the scheduled message columns read by the audit
type Columns struct {
	ID            string `toml:"id"`
	ScheduledTime string `toml:"scheduled_time"`
	Primary       string `toml:"primary"`
	Fallback      string `toml:"fallback"`
	Checkpoint    string `toml:"checkpoint"`
	Server        string `toml:"server"`
	ReferenceID   string `toml:"reference_id"`
	Reference2ID  string `toml:"reference2_id"`
}

// DefaultConfig returns the identity manager's table layout on a local
// sqlite file
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlite3",
		DSN:          "scheduled_message.db",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		Table:        "SCHEDULED_MESSAGE",
		Columns:      DefaultColumns(),
	}
}

// DefaultColumns returns the identity manager's column names
func DefaultColumns() Columns {
	return Columns{
		ID:            "SCHEDULED_MESSAGE_ID",
		ScheduledTime: "SCHEDULED_TIME",
		Primary:       "MESSAGE",
		Fallback:      "SMALL_MESSAGE",
		Checkpoint:    "CHECKPOINT_TIME",
		Server:        "SERVER",
		ReferenceID:   "REFERENCE_ID",
		Reference2ID:  "REFERENCE2_ID",
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// Validate checks the configuration. Table and column names are spliced
// into queries and cleanup statements, so they must be plain identifiers.
func (c Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.DSN == "" {
		return fmt.Errorf("database dsn must be specified")
	}
	if !identifier.MatchString(c.Table) {
		return fmt.Errorf("database table %q is not a valid identifier", c.Table)
	}
	for name, col := range map[string]string{
		"id":             c.Columns.ID,
		"scheduled_time": c.Columns.ScheduledTime,
		"primary":        c.Columns.Primary,
		"fallback":       c.Columns.Fallback,
	} {
		if !identifier.MatchString(col) {
			return fmt.Errorf("database column %s %q is not a valid identifier", name, col)
		}
	}
	for _, col := range []string{c.Columns.Checkpoint, c.Columns.Server, c.Columns.ReferenceID, c.Columns.Reference2ID} {
		if col != "" && !identifier.MatchString(col) {
			return fmt.Errorf("database column %q is not a valid identifier", col)
		}
	}
	return nil
}

// Standard errors
var (
	ErrNotFound = errors.New("db: not found")
	ErrConnect  = errors.New("db: connection failed")
)

// Open creates a new database connection
func Open(driver, dsn string) (*DB, error) {
	return OpenContext(context.Background(), driver, dsn)
}

// OpenContext creates a new database connection, verifying it within ctx
func OpenContext(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &DB{
		DB:     db,
		driver: driver,
	}, nil
}

// OpenWithConfig creates a connection with custom configuration
func OpenWithConfig(ctx context.Context, config Config) (*DB, error) {
	db, err := OpenContext(ctx, config.Driver, config.DSN)
	if err != nil {
		return nil, err
	}

	// Apply connection pool settings
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	return db, nil
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// Error classification functions

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsConnect checks if error is a connection failure
func IsConnect(err error) bool {
	return errors.Is(err, ErrConnect)
}
