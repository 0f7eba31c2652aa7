// Package report renders classified records into the digest, cleanup
// script and dump outputs.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/javaser"
	"github.com/livinlefevreloca/msgaudit/internal/objtree"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

// Timestamp layouts of the digest and dump
const (
	DigestTimeLayout = "01/02/2006 15:04:05"
	DumpTimeLayout   = time.RFC1123Z
)

// Config controls where and how the outputs are written
type Config struct {
	Dir         string `toml:"dir"`
	DigestFile  string `toml:"digest_file"`
	CleanupFile string `toml:"cleanup_file"`
	DumpFile    string `toml:"dump_file"`

	// Timezone of digest timestamps: "Local", "UTC" or an IANA name
	Timezone string `toml:"timezone"`
}

// DefaultConfig returns the file names the identity manager's
// administrators expect
func DefaultConfig() Config {
	return Config{
		Dir:         ".",
		DigestFile:  "scheduled_message_digest.csv",
		CleanupFile: "scheduled_message_cleanup.sql",
		DumpFile:    "scheduled_message.dump",
		Timezone:    "Local",
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DigestFile == "" || c.CleanupFile == "" || c.DumpFile == "" {
		return fmt.Errorf("output file names must be specified")
	}
	if c.DigestFile == c.CleanupFile || c.DigestFile == c.DumpFile || c.CleanupFile == c.DumpFile {
		return fmt.Errorf("output file names must be distinct")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the digest time zone
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid output timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Statement renders the cleanup statement for a record id
type Statement func(id int64) string

// Emitter writes the three outputs. Each record's lines are rendered in
// full before the lock is taken, so records never interleave.
type Emitter struct {
	mu      sync.Mutex
	digest  *bufio.Writer
	cleanup *bufio.Writer
	dump    *bufio.Writer
	closers []io.Closer

	loc       *time.Location
	statement Statement

	records  int
	failures int
	cleanups int
}

// New creates an emitter over caller-owned writers
func New(digest, cleanup, dump io.Writer, loc *time.Location, statement Statement) *Emitter {
	if loc == nil {
		loc = time.Local
	}
	return &Emitter{
		digest:    bufio.NewWriter(digest),
		cleanup:   bufio.NewWriter(cleanup),
		dump:      bufio.NewWriter(dump),
		loc:       loc,
		statement: statement,
	}
}

// Create opens the output files under config.Dir, truncating them. Close
// flushes and closes them.
func Create(config Config, statement Statement) (*Emitter, error) {
	loc, err := config.Location()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, name := range []string{config.DigestFile, config.CleanupFile, config.DumpFile} {
		f, err := os.Create(filepath.Join(config.Dir, name))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create output: %w", err)
		}
		files = append(files, f)
	}

	e := New(files[0], files[1], files[2], loc, statement)
	for _, f := range files {
		e.closers = append(e.closers, f)
	}
	return e, nil
}

// Emit writes one digest line, one dump line and a cleanup statement when
// the message asks for one
func (e *Emitter) Emit(rec source.Record, msg classify.Message, raw []byte) error {
	digest := e.digestLine(rec, msg.Summary(), msg.DetailString())
	dump := e.dumpLine(rec, raw)

	var cleanup string
	if msg.Cleanup {
		cleanup = e.statement(rec.ID) + "\n"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.records++
	if cleanup != "" {
		e.cleanups++
	}
	return e.write(digest, dump, cleanup)
}

// EmitFailure writes the digest and dump lines of a record that could not
// be decoded. raw is whatever was recovered before the failure, possibly
// nothing.
func (e *Emitter) EmitFailure(rec source.Record, err error, raw []byte) error {
	label := fmt.Sprintf("Undecodable (%s): %s", Category(err), oneLine(err.Error()))
	digest := e.digestLine(rec, label, "")
	dump := e.dumpLine(rec, raw)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.records++
	e.failures++
	return e.write(digest, dump, "")
}

func (e *Emitter) write(digest, dump, cleanup string) error {
	if _, err := e.digest.WriteString(digest); err != nil {
		return fmt.Errorf("failed to write digest: %w", err)
	}
	if _, err := e.dump.WriteString(dump); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	if cleanup != "" {
		if _, err := e.cleanup.WriteString(cleanup); err != nil {
			return fmt.Errorf("failed to write cleanup script: %w", err)
		}
	}
	return nil
}

func (e *Emitter) digestLine(rec source.Record, summary, detail string) string {
	ts := rec.ScheduledTime().In(e.loc).Format(DigestTimeLayout)
	if detail == "" {
		return fmt.Sprintf("%s, %d, %s,\n", ts, rec.ID, oneLine(summary))
	}
	return fmt.Sprintf("%s, %d, %s, %s\n", ts, rec.ID, oneLine(summary), oneLine(detail))
}

func (e *Emitter) dumpLine(rec source.Record, raw []byte) string {
	ts := rec.ScheduledTime().UTC().Format(DumpTimeLayout)
	return fmt.Sprintf("%s, %d, %s\n", ts, rec.ID, strconv.Quote(string(raw)))
}

// oneLine keeps extracted values from breaking the line structure
func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

// Flush writes buffered output
func (e *Emitter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return errors.Join(e.digest.Flush(), e.cleanup.Flush(), e.dump.Flush())
}

// Close flushes and closes any files opened by Create
func (e *Emitter) Close() error {
	errs := []error{e.Flush()}
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Counts returns the number of records, failures and cleanup statements
// written so far
func (e *Emitter) Counts() (records, failures, cleanups int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records, e.failures, e.cleanups
}

// Category names the failure class of a record error
func Category(err error) string {
	switch {
	case errors.Is(err, payload.ErrEncoding):
		return "encoding"
	case errors.Is(err, payload.ErrCompression):
		return "compression"
	case errors.Is(err, objtree.ErrMalformed):
		return "malformed markup"
	case errors.Is(err, javaser.ErrUnknownType):
		return "unknown type"
	case errors.Is(err, javaser.ErrCorrupt):
		return "corrupt graph"
	case errors.Is(err, source.ErrNoPayload):
		return "no payload"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
