package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/msgaudit/internal/inbox"
)

// Collector centralizes batch statistics. Workers send outcomes through an
// inbox; a single goroutine accumulates them and reports progress.
type Collector struct {
	inbox  *inbox.Inbox[Outcome]
	config Config
	logger *slog.Logger
	now    func() time.Time

	// Mutex protects all mutable fields below
	mu    sync.Mutex
	total int
	start time.Time
	acc   *accumulator

	// Shutdown coordination
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector for a batch of total records
func NewCollector(config Config, total int, logger *slog.Logger) *Collector {
	return newCollector(config, total, logger, time.Now)
}

func newCollector(config Config, total int, logger *slog.Logger, now func() time.Time) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := config.InboxBufferSize
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Collector{
		inbox:  inbox.New[Outcome](bufferSize, config.InboxSendTimeout, logger),
		config: config,
		logger: logger,
		now:    now,
		total:  total,
		start:  now(),
		acc:    newAccumulator(),
	}
}

// Start begins the collection loop
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
}

// Stop drains pending outcomes and returns the final summary. Send must
// not be called after Stop.
func (c *Collector) Stop() Summary {
	c.stopOnce.Do(func() {
		c.inbox.Close()
		c.wg.Wait()
	})
	return c.Snapshot()
}

// Send queues an outcome
func (c *Collector) Send(ctx context.Context, o Outcome) error {
	return c.inbox.Send(ctx, o)
}

// Snapshot returns the current summary
func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.summary(c.total, c.now().Sub(c.start))
}

// run is the main collection loop
func (c *Collector) run() {
	defer c.wg.Done()

	var tick <-chan time.Time
	if c.config.ProgressInterval > 0 {
		ticker := time.NewTicker(c.config.ProgressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case o, ok := <-c.inbox.C():
			if !ok {
				return
			}
			c.inbox.MarkReceived()
			c.mu.Lock()
			c.acc.Add(o)
			c.mu.Unlock()

		case <-tick:
			c.logProgress()
		}
	}
}

func (c *Collector) logProgress() {
	s := c.Snapshot()
	c.logger.Info("processing",
		"percent", s.Percent(),
		"processed", s.Processed,
		"total", s.Total,
		"failures", s.Failures,
		"inbox_depth", c.inbox.Len())
}

// LogSummary writes the summary as a single structured record
func LogSummary(logger *slog.Logger, s Summary) {
	logger.Info("batch summary",
		"total", s.Total,
		"processed", s.Processed,
		"failures", s.Failures,
		"cleanups", s.Cleanups,
		"by_kind", s.ByKind,
		"by_format", s.ByFormat,
		"by_category", s.ByCategory,
		"min_record_time", s.MinDuration,
		"max_record_time", s.MaxDuration,
		"avg_record_time", s.AvgDuration,
		"elapsed", s.Elapsed)
}

// Helper functions for min/max/avg calculations

func calculateMinMaxAvgDuration(values []time.Duration) (min, max, avg time.Duration) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	var sum time.Duration

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	avg = sum / time.Duration(len(values))
	return min, max, avg
}
