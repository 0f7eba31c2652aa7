package inbox

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Inbox is a typed, bounded message channel between goroutines.
// T is the message type that will be sent through the inbox
type Inbox[T any] struct {
	ch       chan T
	slowSend time.Duration
	logger   *slog.Logger

	sent         atomic.Int64
	received     atomic.Int64
	slowSends    atomic.Int64
	maxDepthSeen atomic.Int64
}

// Stats tracks inbox usage
type Stats struct {
	TotalSent     int64
	TotalReceived int64
	SlowSends     int64
	CurrentDepth  int
	MaxDepthSeen  int
}

// New creates an inbox with the specified buffer size. A send blocked for
// longer than slowSend is logged once and keeps waiting; zero disables the
// warning.
func New[T any](bufferSize int, slowSend time.Duration, logger *slog.Logger) *Inbox[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox[T]{
		ch:       make(chan T, bufferSize),
		slowSend: slowSend,
		logger:   logger,
	}
}

// Send blocks until the message is queued or ctx is done
func (ib *Inbox[T]) Send(ctx context.Context, msg T) error {
	select {
	case ib.ch <- msg:
		ib.sent.Add(1)
		ib.updateDepth()
		return nil
	default:
	}

	var slow <-chan time.Time
	if ib.slowSend > 0 {
		timer := time.NewTimer(ib.slowSend)
		defer timer.Stop()
		slow = timer.C
	}

	for {
		select {
		case ib.ch <- msg:
			ib.sent.Add(1)
			ib.updateDepth()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-slow:
			slow = nil
			ib.slowSends.Add(1)
			ib.logger.Warn("inbox send blocked",
				"waited", ib.slowSend,
				"current_depth", len(ib.ch))
		}
	}
}

// Receive blocks until a message is available, the inbox is closed or ctx
// is done. ok is false once the inbox is closed and drained.
func (ib *Inbox[T]) Receive(ctx context.Context) (msg T, ok bool, err error) {
	select {
	case msg, ok = <-ib.ch:
		if ok {
			ib.received.Add(1)
		}
		return msg, ok, nil
	case <-ctx.Done():
		return msg, false, ctx.Err()
	}
}

// TryReceive attempts to receive a message without blocking
func (ib *Inbox[T]) TryReceive() (T, bool) {
	select {
	case msg, ok := <-ib.ch:
		if ok {
			ib.received.Add(1)
		}
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}

// C exposes the channel for use in select statements. Messages taken from
// it directly should be reported with MarkReceived.
func (ib *Inbox[T]) C() <-chan T {
	return ib.ch
}

// MarkReceived counts a message taken from C
func (ib *Inbox[T]) MarkReceived() {
	ib.received.Add(1)
}

func (ib *Inbox[T]) updateDepth() {
	depth := int64(len(ib.ch))
	for {
		seen := ib.maxDepthSeen.Load()
		if depth <= seen || ib.maxDepthSeen.CompareAndSwap(seen, depth) {
			return
		}
	}
}

// GetStats returns a copy of the current inbox statistics
func (ib *Inbox[T]) GetStats() Stats {
	return Stats{
		TotalSent:     ib.sent.Load(),
		TotalReceived: ib.received.Load(),
		SlowSends:     ib.slowSends.Load(),
		CurrentDepth:  len(ib.ch),
		MaxDepthSeen:  int(ib.maxDepthSeen.Load()),
	}
}

// Len returns the current number of messages in the inbox
func (ib *Inbox[T]) Len() int {
	return len(ib.ch)
}

// Close closes the inbox channel. Only the sending side may close it.
func (ib *Inbox[T]) Close() {
	close(ib.ch)
}
