package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// =============================================================================
// Scheduled Message Operations
// =============================================================================

// ScheduledMessage is one raw row of the scheduled message table. Nullable
// columns are pointers; payload columns are nil when NULL.
type ScheduledMessage struct {
	ID            int64
	ScheduledTime int64 // epoch milliseconds
	Primary       []byte
	Fallback      []byte
	Checkpoint    *int64
	Server        *string
	ReferenceID   *string
	Reference2ID  *string
}

// MessageTable reads the scheduled message table described by a Config
type MessageTable struct {
	db      *DB
	table   string
	columns Columns
}

// Messages returns a reader over the configured scheduled message table
func (db *DB) Messages(config Config) *MessageTable {
	return &MessageTable{db: db, table: config.Table, columns: config.Columns}
}

// Count returns the number of rows in the table
func (t *MessageTable) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.table)
	if err := t.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.table, err)
	}
	return n, nil
}

// selectList returns the projected columns. Optional columns that are not
// configured are selected as NULL so the scan stays positional.
func (t *MessageTable) selectList() string {
	c := t.columns
	optional := func(col string) string {
		if col == "" {
			return "NULL"
		}
		return col
	}
	return strings.Join([]string{
		c.ID,
		c.ScheduledTime,
		c.Primary,
		c.Fallback,
		optional(c.Checkpoint),
		optional(c.Server),
		optional(c.ReferenceID),
		optional(c.Reference2ID),
	}, ", ")
}

// Each calls fn for every row in primary key order. Iteration stops at the
// first error returned by fn, which is passed through unwrapped.
func (t *MessageTable) Each(ctx context.Context, fn func(ScheduledMessage) error) error {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.selectList(), t.table, t.columns.ID)

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", t.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg               ScheduledMessage
			primary, fallback sql.RawBytes
			checkpoint        sql.NullInt64
			server, ref, ref2 sql.NullString
		)
		err := rows.Scan(
			&msg.ID,
			&msg.ScheduledTime,
			&primary,
			&fallback,
			&checkpoint,
			&server,
			&ref,
			&ref2,
		)
		if err != nil {
			return fmt.Errorf("failed to scan %s row: %w", t.table, err)
		}

		// RawBytes is only valid until the next call to Next
		if primary != nil {
			msg.Primary = append([]byte{}, primary...)
		}
		if fallback != nil {
			msg.Fallback = append([]byte{}, fallback...)
		}
		if checkpoint.Valid {
			msg.Checkpoint = &checkpoint.Int64
		}
		msg.Server = nullString(server)
		msg.ReferenceID = nullString(ref)
		msg.Reference2ID = nullString(ref2)

		if err := fn(msg); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.table, err)
	}
	return nil
}

// CleanupStatement returns the statement removing the row with the given
// id. It is only ever written to the cleanup script, never executed.
func (c Config) CleanupStatement(id int64) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %d;", c.Table, c.Columns.ID, id)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
