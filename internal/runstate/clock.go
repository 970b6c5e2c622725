// Package runstate holds the run clock and counters: the wall-clock
// deadline, the mutex-guarded global failure counter and elapsed-time
// watermarks, and the optional error-rate stop condition.
package runstate

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// Clock is the shared run-state record: a single place holding the
// deadline, the failure budget, and the GlobalStats mutex, passed to every
// Worker.
type Clock struct {
	t0            time.Time
	deadlineSecs  int
	failureBudget int
	stopIf        *condition

	stats *models.GlobalStats

	histMu sync.Mutex
	hist   *hdrhistogram.Histogram
}

// New constructs a Clock for one run. stopIfExpr is an optional
// "errors > N%" condition (empty disables it); minSamples is the cold-start
// protection floor before the rate condition can trip.
func New(deadlineSecs, failureBudget int, stopIfExpr string, minSamples int64) (*Clock, error) {
	var cond *condition
	if stopIfExpr != "" {
		c, err := parseCondition(stopIfExpr, minSamples)
		if err != nil {
			return nil, err
		}
		cond = c
	}
	return &Clock{
		deadlineSecs:  deadlineSecs,
		failureBudget: failureBudget,
		stopIf:        cond,
		stats:         &models.GlobalStats{},
		// min 1us, max 5 minutes, 3 significant figures — wide enough for a
		// load generator's transaction latencies without rejecting outliers.
		hist: hdrhistogram.New(1, 5*60*1000*1000, 3),
	}, nil
}

// Start captures t0.
func (c *Clock) Start() { c.t0 = time.Now() }

// DeadlineReached returns true once S>0 and now-t0 >= S.
func (c *Clock) DeadlineReached() bool {
	if c.deadlineSecs <= 0 {
		return false
	}
	return time.Since(c.t0) >= time.Duration(c.deadlineSecs)*time.Second
}

// RecordFailure increments the shared failure counter and the attempt
// counter the rate-based stop condition needs.
func (c *Clock) RecordFailure() {
	c.stats.RecordFailure()
	c.stats.RecordAttempt()
}

// RecordSuccess increments only the attempt counter, so the error-rate
// condition sees the full attempt population.
func (c *Clock) RecordSuccess() {
	c.stats.RecordAttempt()
}

// Observe folds one transaction's elapsed time into the high/low watermarks
// and the run-wide HDR histogram.
func (c *Clock) Observe(elapsed time.Duration) {
	c.stats.Observe(elapsed.Seconds())
	c.histMu.Lock()
	_ = c.hist.RecordValue(elapsed.Microseconds())
	c.histMu.Unlock()
}

// BudgetExceeded is true once the plain failure count F is exhausted, or
// (if configured) the error-rate condition trips past its minimum sample
// floor.
func (c *Clock) BudgetExceeded() bool {
	failed, attempts, _, _ := c.stats.Snapshot()
	if c.failureBudget > 0 && failed >= int64(c.failureBudget) {
		return true
	}
	if c.stopIf != nil && attempts >= c.stopIf.minSamples {
		return c.stopIf.trips(failed, attempts)
	}
	return false
}

// Snapshot returns the current failed count and watermarks.
func (c *Clock) Snapshot() (failed, attempts int64, highmark, lowmark float64) {
	return c.stats.Snapshot()
}

// Percentiles returns the run-wide p50/p75/p90/p95/p99 as durations.
func (c *Clock) Percentiles() (p50, p75, p90, p95, p99 time.Duration) {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	at := func(q float64) time.Duration {
		return time.Duration(c.hist.ValueAtQuantile(q)) * time.Microsecond
	}
	return at(50), at(75), at(90), at(95), at(99)
}
