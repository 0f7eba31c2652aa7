package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Column headers of a table export
const (
	ColScheduledTime = "SCHEDULED_TIME"
	ColID            = "SCHEDULED_MESSAGE_ID"
	ColMessage       = "MESSAGE"
	ColServer        = "SERVER"
	ColCheckpoint    = "CHECKPOINT_TIME"
	ColReferenceID   = "REFERENCE_ID"
	ColReference2ID  = "REFERENCE2_ID"
	ColSmallMessage  = "SMALL_MESSAGE"
)

// ExportColumns is the column order of a headerless export
var ExportColumns = []string{
	ColScheduledTime, ColID, ColMessage, ColServer,
	ColCheckpoint, ColReferenceID, ColReference2ID, ColSmallMessage,
}

// CSV holds the records of a table export, sorted by id. An export with a
// header row may order columns freely; without one ExportColumns is assumed.
// Empty cells read as NULL.
type CSV struct {
	records []Record
}

// LoadCSV reads an export file
func LoadCSV(path string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses an export
func ReadCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		index map[string]int
		out   []Record
		line  int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export: %w", err)
		}
		line++

		if index == nil {
			var isHeader bool
			index, isHeader = columnIndex(row)
			if isHeader {
				continue
			}
		}

		rec, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("export line %d: %w", line, err)
		}
		out = append(out, rec)
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return &CSV{records: out}, nil
}

// columnIndex maps column names to positions. The row is a header when it
// names the id column.
func columnIndex(row []string) (map[string]int, bool) {
	index := make(map[string]int, len(row))
	for i, name := range row {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	if _, ok := index[ColID]; ok {
		return index, true
	}

	index = make(map[string]int, len(ExportColumns))
	for i, name := range ExportColumns {
		index[name] = i
	}
	return index, false
}

func parseRow(row []string, index map[string]int) (Record, error) {
	cell := func(col string) (string, bool) {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[i])
		return v, v != ""
	}

	var rec Record

	id, ok := cell(ColID)
	if !ok {
		return rec, fmt.Errorf("missing %s", ColID)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return rec, fmt.Errorf("invalid %s %q: %w", ColID, id, err)
	}
	rec.ID = n

	if v, ok := cell(ColScheduledTime); ok {
		if rec.ScheduledAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return rec, fmt.Errorf("invalid %s %q: %w", ColScheduledTime, v, err)
		}
	}
	if v, ok := cell(ColCheckpoint); ok {
		cp, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("invalid %s %q: %w", ColCheckpoint, v, err)
		}
		rec.Checkpoint = &cp
	}
	if v, ok := cell(ColMessage); ok {
		rec.Primary = []byte(v)
	}
	if v, ok := cell(ColSmallMessage); ok {
		rec.Fallback = []byte(v)
	}
	rec.Server = optional(cell(ColServer))
	rec.ReferenceID = optional(cell(ColReferenceID))
	rec.Reference2ID = optional(cell(ColReference2ID))

	return rec, nil
}

func optional(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}

// Count implements Source
func (c *CSV) Count(ctx context.Context) (int, error) {
	return len(c.records), ctx.Err()
}

// Each implements Source
func (c *CSV) Each(ctx context.Context, fn func(Record) error) error {
	for _, rec := range c.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Source
func (c *CSV) Close() error { return nil }
