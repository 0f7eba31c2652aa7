package source

import (
	"context"

	"github.com/livinlefevreloca/msgaudit/internal/db"
)

// SQL reads records from the scheduled message table
type SQL struct {
	db    *db.DB
	table *db.MessageTable
	owned bool
}

// OpenSQL connects to the database described by config. The connection is
// closed by Close.
func OpenSQL(ctx context.Context, config db.Config) (*SQL, error) {
	conn, err := db.OpenWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	return &SQL{db: conn, table: conn.Messages(config), owned: true}, nil
}

// NewSQL wraps an open connection. Close leaves the connection open.
func NewSQL(conn *db.DB, config db.Config) *SQL {
	return &SQL{db: conn, table: conn.Messages(config)}
}

// Count implements Source
func (s *SQL) Count(ctx context.Context) (int, error) {
	return s.table.Count(ctx)
}

// Each implements Source
func (s *SQL) Each(ctx context.Context, fn func(Record) error) error {
	return s.table.Each(ctx, func(m db.ScheduledMessage) error {
		return fn(Record{
			ID:           m.ID,
			ScheduledAt:  m.ScheduledTime,
			Primary:      m.Primary,
			Fallback:     m.Fallback,
			Checkpoint:   m.Checkpoint,
			Server:       m.Server,
			ReferenceID:  m.ReferenceID,
			Reference2ID: m.Reference2ID,
		})
	})
}

// Close implements Source
func (s *SQL) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
