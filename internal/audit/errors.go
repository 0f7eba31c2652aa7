package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/livinlefevreloca/msgaudit/internal/db"
	"github.com/livinlefevreloca/msgaudit/internal/javaser"
	"github.com/livinlefevreloca/msgaudit/internal/objtree"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

// Standard errors
var (
	ErrConfig    = errors.New("audit: invalid configuration")
	ErrSource    = errors.New("audit: record source failure")
	ErrDirectory = errors.New("audit: directory failure")
	ErrOutput    = errors.New("audit: output failure")
)

// Exit statuses, one per failure category
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitEncoding    = 2
	ExitCompression = 3
	ExitEmptySource = 4
	ExitSource      = 5
	ExitMarkup      = 6
	ExitGraph       = 7
	ExitDirectory   = 8
	ExitNoPayload   = 9
	ExitOutput      = 10
	ExitTimeout     = 11
)

// ExitStatus maps a batch error to the process exit status. Errors outside
// the known categories map to ExitConfig.
func ExitStatus(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, payload.ErrEncoding):
		return ExitEncoding
	case errors.Is(err, payload.ErrCompression):
		return ExitCompression
	case errors.Is(err, source.ErrEmpty):
		return ExitEmptySource
	case errors.Is(err, ErrSource), db.IsConnect(err):
		return ExitSource
	case errors.Is(err, objtree.ErrMalformed):
		return ExitMarkup
	case errors.Is(err, javaser.ErrUnknownType), errors.Is(err, javaser.ErrCorrupt):
		return ExitGraph
	case errors.Is(err, ErrDirectory):
		return ExitDirectory
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, source.ErrNoPayload):
		return ExitNoPayload
	case errors.Is(err, ErrOutput):
		return ExitOutput
	}
	return ExitConfig
}

// Stage names a step of the per-record pipeline
type Stage string

const (
	StageSelect   Stage = "select"
	StageUnwrap   Stage = "unwrap"
	StageDecode   Stage = "decode"
	StageClassify Stage = "classify"
)

// excerptLen is the number of payload bytes kept for diagnostics
const excerptLen = 64

// RecordError is a failure of one record with enough context to diagnose
// it without re-running
type RecordError struct {
	ID      int64
	Stage   Stage
	Excerpt string
	Err     error
}

func newRecordError(id int64, stage Stage, encoded []byte, err error) *RecordError {
	if len(encoded) > excerptLen {
		encoded = encoded[:excerptLen]
	}
	return &RecordError{ID: id, Stage: stage, Excerpt: string(encoded), Err: err}
}

func (e *RecordError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("record %d: %s: %v", e.ID, e.Stage, e.Err)
	}
	return fmt.Sprintf("record %d: %s: %v (payload %q)", e.ID, e.Stage, e.Err, e.Excerpt)
}

func (e *RecordError) Unwrap() error { return e.Err }

// fatal reports whether the failure stops the batch regardless of policy
func (e *RecordError) fatal() bool {
	return errors.Is(e.Err, ErrDirectory)
}
