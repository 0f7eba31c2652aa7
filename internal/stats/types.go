package stats

import (
	"maps"
	"time"
)

// Outcome is the result of processing one record
type Outcome struct {
	RecordID int64
	Kind     string // classification kind, empty on failure
	Format   string
	Cleanup  bool
	Failed   bool
	Category string // failure category when Failed
	Duration time.Duration
}

// Summary is a point-in-time view of a batch
type Summary struct {
	Total     int
	Processed int
	Failures  int
	Cleanups  int

	ByKind     map[string]int
	ByFormat   map[string]int
	ByCategory map[string]int

	MinDuration time.Duration
	MaxDuration time.Duration
	AvgDuration time.Duration
	Elapsed     time.Duration
}

// Percent returns processed records as a percentage of the total
func (s Summary) Percent() int {
	if s.Total <= 0 {
		return 100
	}
	return s.Processed * 100 / s.Total
}

// accumulator collects outcomes for a batch
type accumulator struct {
	processed int
	failures  int
	cleanups  int

	byKind     map[string]int
	byFormat   map[string]int
	byCategory map[string]int

	durations []time.Duration
}

func newAccumulator() *accumulator {
	return &accumulator{
		byKind:     make(map[string]int),
		byFormat:   make(map[string]int),
		byCategory: make(map[string]int),
	}
}

// Add adds one outcome to the accumulator
func (acc *accumulator) Add(o Outcome) {
	acc.processed++
	if o.Failed {
		acc.failures++
		acc.byCategory[o.Category]++
	} else {
		acc.byKind[o.Kind]++
	}
	if o.Format != "" {
		acc.byFormat[o.Format]++
	}
	if o.Cleanup {
		acc.cleanups++
	}
	acc.durations = append(acc.durations, o.Duration)
}

func (acc *accumulator) summary(total int, elapsed time.Duration) Summary {
	minD, maxD, avgD := calculateMinMaxAvgDuration(acc.durations)
	return Summary{
		Total:       total,
		Processed:   acc.processed,
		Failures:    acc.failures,
		Cleanups:    acc.cleanups,
		ByKind:      maps.Clone(acc.byKind),
		ByFormat:    maps.Clone(acc.byFormat),
		ByCategory:  maps.Clone(acc.byCategory),
		MinDuration: minD,
		MaxDuration: maxD,
		AvgDuration: avgD,
		Elapsed:     elapsed,
	}
}
