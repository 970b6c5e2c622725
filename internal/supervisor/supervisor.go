// Package supervisor spawns the N workers, gives every one a cooperative
// cancellation signal, waits for completion or an early stop condition, and
// folds per-worker counters into a run-wide Report.
package supervisor

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/onslaught-http/onslaught/internal/controller"
	"github.com/onslaught-http/onslaught/internal/cookiejar"
	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/internal/worker"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// Supervisor owns the lifetime of one run.
type Supervisor struct {
	cfg   *models.RunConfig
	plan  *urlplan.Plan
	ctrl  *controller.Controller
	clock *runstate.Clock
	jar   *cookiejar.Jar
	hook  controller.TxHook
}

// New builds a Supervisor for one run.
func New(cfg *models.RunConfig, plan *urlplan.Plan, ctrl *controller.Controller, clock *runstate.Clock, jar *cookiejar.Jar, hook controller.TxHook) *Supervisor {
	return &Supervisor{cfg: cfg, plan: plan, ctrl: ctrl, clock: clock, jar: jar, hook: hook}
}

// Run spawns cfg.Concurrency workers, watches the shared deadline/budget
// alongside ctx (the caller's interrupt source), and returns the folded
// report once every worker has exited.
func (s *Supervisor) Run(ctx context.Context) models.Report {
	start := time.Now()
	s.clock.Start()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tally := newTxTally(start)
	hook := func(workerID int, tmpl models.UrlTemplate, result models.TxResult) {
		tally.observe(result)
		if s.hook != nil {
			s.hook(workerID, tmpl, result)
		}
	}

	workers := make([]*worker.Worker, s.cfg.Concurrency)
	for i := range workers {
		seed := time.Now().UnixNano() + int64(i)
		workers[i] = worker.New(i, seed, s.cfg, s.plan, s.ctrl, s.clock, s.jar, hook)
	}

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, w := range workers {
		w := w
		go func() {
			defer wg.Done()
			w.Run(runCtx)
		}()
	}

	// Watch the deadline/budget in parallel with the workers themselves;
	// each worker also checks these at its own loop boundary, but this
	// watcher ensures a wall-clock-only run still unblocks the Supervisor
	// promptly, cancelling every worker together.
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-done:
			break loop
		case <-ctx.Done():
			cancel()
			<-done
			break loop
		case <-ticker.C:
			if s.clock.DeadlineReached() || s.clock.BudgetExceeded() {
				cancel()
				<-done
				break loop
			}
		}
	}

	return s.foldReport(workers, tally, time.Since(start))
}

func (s *Supervisor) foldReport(workers []*worker.Worker, tally *txTally, elapsed time.Duration) models.Report {
	var report models.Report
	report.Concurrency = s.cfg.Concurrency
	report.Elapsed = elapsed

	for _, w := range workers {
		st := w.Stats()
		report.Hits += st.Hits
		report.Bytes += st.Bytes
		report.TotalTime += st.Time
		report.OK200 += st.OK200
	}

	failed, _, highmark, lowmark := s.clock.Snapshot()
	report.Failed = failed
	report.HighTime = highmark
	report.LowTime = lowmark
	report.P50, report.P75, report.P90, report.P95, report.P99 = s.clock.Percentiles()
	report.StatusCodes, report.Errors, report.TimeSeries = tally.fold()

	return report
}

// txTally is the cross-worker view of every hop the run's hook observed:
// status-code counts, error-kind counts, and a per-second series for the
// final report. Hooks arrive concurrently from every worker, so all access
// goes through its mutex.
type txTally struct {
	mu     sync.Mutex
	start  time.Time
	codes  map[string]int
	errors map[string]int
	series map[int]*models.SecondStats
	sumMS  map[int]float64
}

func newTxTally(start time.Time) *txTally {
	return &txTally{
		start:  start,
		codes:  map[string]int{},
		errors: map[string]int{},
		series: map[int]*models.SecondStats{},
		sumMS:  map[int]float64{},
	}
}

func (t *txTally) observe(result models.TxResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sec := int(time.Since(t.start).Seconds())
	ss := t.series[sec]
	if ss == nil {
		ss = &models.SecondStats{Second: sec, StatusCodes: map[string]int{}}
		t.series[sec] = ss
	}
	ss.Requests++
	t.sumMS[sec] += float64(result.Elapsed.Milliseconds())

	var key string
	if result.OK {
		key = strconv.Itoa(result.Status)
		ss.Success++
	} else {
		key = "error"
		if result.Fail != nil {
			key = result.Fail.Kind.String()
		}
		ss.Failures++
		t.errors[key]++
	}
	t.codes[key]++
	ss.StatusCodes[key]++
}

func (t *txTally) fold() (codes, errors map[string]int, series []models.SecondStats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seconds := make([]int, 0, len(t.series))
	for sec := range t.series {
		seconds = append(seconds, sec)
	}
	sort.Ints(seconds)
	for _, sec := range seconds {
		ss := *t.series[sec]
		if ss.Requests > 0 {
			ss.AvgLatencyMS = t.sumMS[sec] / float64(ss.Requests)
		}
		series = append(series, ss)
	}
	return t.codes, t.errors, series
}
