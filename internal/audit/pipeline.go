package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/directory"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
	"github.com/livinlefevreloca/msgaudit/internal/source"
)

// Pipeline runs the stages of one record: select, unwrap, sniff, decode
// and classify. It holds no per-record state and is safe for concurrent
// use when its resolver is.
type Pipeline struct {
	Selection  source.Selection
	Unwrapper  *payload.Unwrapper
	Classifier *classify.Classifier
	Resolver   directory.Resolver
	Timeout    time.Duration
}

// Result is the outcome of one record. Exactly one of Message and Err is
// meaningful; Raw holds whatever was decoded before a failure.
type Result struct {
	Position int
	Record   source.Record
	Message  classify.Message
	Raw      []byte
	Err      *RecordError
	Duration time.Duration
}

// Process runs the pipeline for one record
func (p *Pipeline) Process(ctx context.Context, rec source.Record) Result {
	start := time.Now()
	res := Result{Record: rec}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	encoded, err := p.Selection.Payload(rec)
	if err != nil {
		res.Err = newRecordError(rec.ID, StageSelect, nil, err)
		res.Duration = time.Since(start)
		return res
	}
	fail := func(stage Stage, err error) Result {
		res.Err = newRecordError(rec.ID, stage, encoded, err)
		res.Duration = time.Since(start)
		return res
	}

	decoded, err := p.Unwrapper.Open(string(encoded))
	if err != nil {
		return fail(StageUnwrap, err)
	}
	res.Raw = decoded.Raw
	if err := ctx.Err(); err != nil {
		return fail(StageUnwrap, err)
	}

	in, err := classify.Decode(decoded)
	if err != nil {
		return fail(StageDecode, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(StageDecode, err)
	}

	msg, err := p.Classifier.Classify(ctx, in, p.Resolver)
	if err != nil {
		// A lookup cut short by this record's deadline is a record failure;
		// anything else means the directory itself is unusable
		if ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return fail(StageClassify, err)
		}
		return fail(StageClassify, fmt.Errorf("%w: %w", ErrDirectory, err))
	}
	res.Message = msg
	res.Duration = time.Since(start)
	return res
}
