// Package audit runs the scheduled message batch: every record is
// unwrapped, decoded and classified, and the results are emitted in source
// order.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/inbox"
	"github.com/livinlefevreloca/msgaudit/internal/report"
	"github.com/livinlefevreloca/msgaudit/internal/source"
	"github.com/livinlefevreloca/msgaudit/internal/stats"
)

// Emitter receives results in source order
type Emitter interface {
	Emit(rec source.Record, msg classify.Message, raw []byte) error
	EmitFailure(rec source.Record, err error, raw []byte) error
	Flush() error
}

// BatchReport summarizes a finished or aborted batch
type BatchReport struct {
	RunID    string
	Summary  stats.Summary
	Failures []*RecordError
	Aborted  bool
}

// Engine processes one batch. The source, pipeline resolver and emitter
// are owned by the caller, which opens them once and closes them after Run.
type Engine struct {
	config   Config
	source   source.Source
	pipeline *Pipeline
	emitter  Emitter
	logger   *slog.Logger
}

// NewEngine creates an engine
func NewEngine(config Config, src source.Source, pipeline *Pipeline, emitter Emitter, logger *slog.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pipeline.Timeout = config.RecordTimeout
	return &Engine{
		config:   config,
		source:   src,
		pipeline: pipeline,
		emitter:  emitter,
		logger:   logger,
	}, nil
}

// batch is the state of one Run
type batch struct {
	*Engine
	logger    *slog.Logger
	collector *stats.Collector
	report    *BatchReport
	next      int
}

// Run processes every record. Output produced before a fatal error is
// flushed before Run returns.
func (e *Engine) Run(ctx context.Context) (*BatchReport, error) {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	rep := &BatchReport{RunID: runID}

	total, err := e.source.Count(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrSource, err)
	}
	if total == 0 {
		logger.Warn("record source is empty")
		return rep, source.ErrEmpty
	}

	logger.Info("starting batch",
		"records", total,
		"workers", e.config.Workers,
		"failure_policy", e.config.FailurePolicy)

	collector := stats.NewCollector(stats.Config{
		InboxBufferSize:  e.config.InboxBufferSize,
		InboxSendTimeout: e.config.InboxSendTimeout,
		ProgressInterval: e.config.ProgressInterval,
	}, total, logger)
	collector.Start()

	b := &batch{Engine: e, logger: logger, collector: collector, report: rep}
	if e.config.Workers > 1 {
		err = b.runParallel(ctx)
	} else {
		err = b.runSequential(ctx)
	}

	if flushErr := e.emitter.Flush(); flushErr != nil {
		err = errors.Join(err, fmt.Errorf("%w: %w", ErrOutput, flushErr))
	}

	rep.Summary = collector.Stop()
	rep.Aborted = err != nil
	stats.LogSummary(logger, rep.Summary)
	if err != nil {
		logger.Error("batch aborted", "error", err, "exit_status", ExitStatus(err))
	} else {
		logger.Info("batch complete", "failures", len(rep.Failures))
	}
	return rep, err
}

func (b *batch) runSequential(ctx context.Context) error {
	var handleErr error
	err := b.source.Each(ctx, func(rec source.Record) error {
		res := b.pipeline.Process(ctx, rec)
		res.Position = b.next
		handleErr = b.handle(ctx, res)
		return handleErr
	})
	if handleErr != nil {
		return handleErr
	}
	if err != nil {
		return sourceError(err)
	}
	return nil
}

// runParallel processes records on a bounded errgroup. Results carry their
// source position and pass through an inbox to a single sequencer that
// emits them in order.
func (b *batch) runParallel(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := inbox.New[Result](b.config.InboxBufferSize, b.config.InboxSendTimeout, b.logger)

	seqDone := make(chan error, 1)
	go func() {
		seqDone <- b.sequence(runCtx, cancel, results)
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(b.config.Workers)

	position := 0
	eachErr := b.source.Each(gctx, func(rec source.Record) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		pos := position
		position++
		g.Go(func() error {
			res := b.pipeline.Process(gctx, rec)
			res.Position = pos
			return results.Send(gctx, res)
		})
		return nil
	})
	waitErr := g.Wait()
	results.Close()
	seqErr := <-seqDone

	switch {
	case seqErr != nil:
		return seqErr
	case eachErr != nil && !errors.Is(eachErr, context.Canceled):
		return sourceError(eachErr)
	case waitErr != nil:
		return waitErr
	}
	return ctx.Err()
}

// sequence reorders results and hands them to handle in source order. A
// fatal error cancels the run at once so no further records are scheduled;
// sequence then keeps draining so that workers in flight never block.
func (b *batch) sequence(ctx context.Context, cancel context.CancelFunc, results *inbox.Inbox[Result]) error {
	pending := make(map[int]Result)
	var fatal error

	for {
		res, ok, err := results.Receive(context.WithoutCancel(ctx))
		if err != nil || !ok {
			return fatal
		}
		if fatal != nil {
			continue
		}

		pending[res.Position] = res
		for {
			next, ready := pending[b.next]
			if !ready {
				break
			}
			delete(pending, b.next)
			if err := b.handle(ctx, next); err != nil {
				fatal = err
				cancel()
				break
			}
		}
	}
}

// handle applies the failure policy and emits one result
func (b *batch) handle(ctx context.Context, res Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.next++
	rec := res.Record

	outcome := stats.Outcome{RecordID: rec.ID, Duration: res.Duration}

	if res.Err != nil {
		b.report.Failures = append(b.report.Failures, res.Err)
		b.logger.Warn("record failed",
			"record_id", rec.ID,
			"stage", res.Err.Stage,
			"category", report.Category(res.Err),
			"error", res.Err.Err,
			"excerpt", res.Err.Excerpt)

		if res.Err.fatal() || b.config.FailurePolicy == PolicyAbort {
			return res.Err
		}
		if err := b.emitter.EmitFailure(rec, res.Err, res.Raw); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
		outcome.Failed = true
		outcome.Category = report.Category(res.Err)
	} else {
		msg := res.Message
		b.logger.Debug("record classified",
			"record_id", rec.ID,
			"kind", msg.Kind,
			"format", msg.Format,
			"label", msg.Summary(),
			"cleanup", msg.Cleanup)

		if err := b.emitter.Emit(rec, msg, res.Raw); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
		outcome.Kind = msg.Kind.String()
		outcome.Format = msg.Format.String()
		outcome.Cleanup = msg.Cleanup
	}

	// The collector only fails when ctx is done, which the next record sees
	_ = b.collector.Send(ctx, outcome)
	return nil
}

func sourceError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSource, err)
}
