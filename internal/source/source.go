// Package source reads scheduled message records from the table or from a
// CSV export of it.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// Standard errors
var (
	ErrNoPayload = errors.New("source: record has no payload")
	ErrEmpty     = errors.New("source: no records")
)

// Record is one scheduled message row. Payload columns are nil when NULL.
type Record struct {
	ID          int64
	ScheduledAt int64 // epoch milliseconds
	Primary     []byte
	Fallback    []byte

	Checkpoint   *int64
	Server       *string
	ReferenceID  *string
	Reference2ID *string
}

// ScheduledTime returns the scheduled time of the record
func (r Record) ScheduledTime() time.Time {
	return time.UnixMilli(r.ScheduledAt)
}

// Source iterates records in primary key order
type Source interface {
	// Count returns the number of records, used only for progress
	Count(ctx context.Context) (int, error)

	// Each calls fn for every record; an error from fn stops iteration
	// and is returned unchanged
	Each(ctx context.Context, fn func(Record) error) error

	Close() error
}

// =============================================================================
// Payload selection
// =============================================================================

// Selection decides which payload column a record is decoded from
type Selection string

const (
	PrimaryFirst  Selection = "primary-first"
	FallbackFirst Selection = "fallback-first"
	PrimaryOnly   Selection = "primary-only"
	FallbackOnly  Selection = "fallback-only"
)

// Validate checks that the selection is known
func (s Selection) Validate() error {
	switch s {
	case PrimaryFirst, FallbackFirst, PrimaryOnly, FallbackOnly:
		return nil
	}
	return fmt.Errorf("unknown payload selection %q (want %s, %s, %s or %s)",
		s, PrimaryFirst, FallbackFirst, PrimaryOnly, FallbackOnly)
}

// Payload returns the payload chosen by the selection. Whitespace-only
// columns count as absent.
func (s Selection) Payload(r Record) ([]byte, error) {
	var order [][]byte
	switch s {
	case FallbackFirst:
		order = [][]byte{r.Fallback, r.Primary}
	case PrimaryOnly:
		order = [][]byte{r.Primary}
	case FallbackOnly:
		order = [][]byte{r.Fallback}
	default:
		order = [][]byte{r.Primary, r.Fallback}
	}

	for _, p := range order {
		if len(bytes.TrimSpace(p)) > 0 {
			return p, nil
		}
	}
	return nil, fmt.Errorf("record %d: %w", r.ID, ErrNoPayload)
}
