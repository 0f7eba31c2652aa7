package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livinlefevreloca/msgaudit/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test Helpers
// =============================================================================

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InboxBufferSize = 4
	cfg.ProgressInterval = 0
	return cfg
}

// =============================================================================
// Collector Tests
// =============================================================================

func TestCollector_Accumulates(t *testing.T) {
	clock := testutil.NewMockClock(time.Unix(1_700_000_000, 0))
	c := newCollector(testConfig(), 5, testutil.NewTestLogger().Logger(), clock.Now)
	c.Start()

	ctx := context.Background()
	outcomes := []Outcome{
		{RecordID: 1, Kind: "reconciliation", Format: "tree", Duration: 2 * time.Millisecond},
		{RecordID: 2, Kind: "reconciliation", Format: "graph", Cleanup: true, Duration: 4 * time.Millisecond},
		{RecordID: 3, Kind: "lifecycle_rule", Format: "graph", Duration: 6 * time.Millisecond},
		{RecordID: 4, Failed: true, Category: "compression", Duration: 8 * time.Millisecond},
	}
	for _, o := range outcomes {
		require.NoError(t, c.Send(ctx, o))
	}

	clock.Advance(3 * time.Second)
	s := c.Stop()

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 1, s.Cleanups)
	assert.Equal(t, 80, s.Percent())
	assert.Equal(t, map[string]int{"reconciliation": 2, "lifecycle_rule": 1}, s.ByKind)
	assert.Equal(t, map[string]int{"tree": 1, "graph": 2}, s.ByFormat)
	assert.Equal(t, map[string]int{"compression": 1}, s.ByCategory)
	assert.Equal(t, 2*time.Millisecond, s.MinDuration)
	assert.Equal(t, 8*time.Millisecond, s.MaxDuration)
	assert.Equal(t, 5*time.Millisecond, s.AvgDuration)
	assert.Equal(t, 3*time.Second, s.Elapsed)
}

func TestCollector_ConcurrentSenders(t *testing.T) {
	c := NewCollector(testConfig(), 200, nil)
	c.Start()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, c.Send(context.Background(), Outcome{RecordID: int64(w*25 + i), Kind: "unknown"}))
			}
		}(w)
	}
	wg.Wait()

	s := c.Stop()
	assert.Equal(t, 200, s.Processed)
	assert.Equal(t, 100, s.Percent())
	assert.Equal(t, 200, s.ByKind["unknown"])
}

func TestCollector_LogsProgress(t *testing.T) {
	logger := testutil.NewTestLogger()
	cfg := testConfig()
	cfg.ProgressInterval = 10 * time.Millisecond

	c := NewCollector(cfg, 2, logger.Logger())
	c.Start()
	require.NoError(t, c.Send(context.Background(), Outcome{RecordID: 1, Kind: "unknown"}))

	testutil.WaitFor(t, func() bool {
		return len(logger.GetEntriesByMessage("processing")) > 0
	}, time.Second)
	c.Stop()

	entry := logger.GetEntriesByMessage("processing")[0]
	assert.Contains(t, entry.Fields, "percent")
	assert.Equal(t, int64(2), entry.Fields["total"])
}

func TestCollector_StopIsIdempotent(t *testing.T) {
	c := NewCollector(testConfig(), 0, nil)
	c.Start()
	first := c.Stop()
	second := c.Stop()
	assert.Equal(t, first.Processed, second.Processed)
	assert.Equal(t, 100, first.Percent())
}

func TestLogSummary(t *testing.T) {
	logger := testutil.NewTestLogger()
	LogSummary(logger.Logger(), Summary{Total: 3, Processed: 3, Cleanups: 1})

	entries := logger.GetEntriesByMessage("batch summary")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Fields["cleanups"])
}

func TestCalculateMinMaxAvgDuration(t *testing.T) {
	min, max, avg := calculateMinMaxAvgDuration(nil)
	assert.Zero(t, min)
	assert.Zero(t, max)
	assert.Zero(t, avg)

	min, max, avg = calculateMinMaxAvgDuration([]time.Duration{3, 1, 2})
	assert.Equal(t, time.Duration(1), min)
	assert.Equal(t, time.Duration(3), max)
	assert.Equal(t, time.Duration(2), avg)
}
