// Package worker implements one simulated client's lifecycle: a strictly
// sequential loop over its own Connection, cursor, RNG, and auth state.
package worker

import (
	"context"
	"math/rand"

	"github.com/onslaught-http/onslaught/internal/controller"
	"github.com/onslaught-http/onslaught/internal/cookiejar"
	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/internal/transport"
	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// Worker drives one simulated client end to end. It owns exactly one
// *transport.Connection for its entire life; the pointer is replaced,
// never shared, whenever the Engine must open a fresh socket.
type Worker struct {
	cfg   *models.RunConfig
	plan  *urlplan.Plan
	ctrl  *controller.Controller
	clock *runstate.Clock
	jar   *cookiejar.Jar
	hook  controller.TxHook

	state models.WorkerState
	conn  *transport.Connection
}

// New builds a Worker with a private RNG seeded from seed.
func New(id int, seed int64, cfg *models.RunConfig, plan *urlplan.Plan, ctrl *controller.Controller, clock *runstate.Clock, jar *cookiejar.Jar, hook controller.TxHook) *Worker {
	return &Worker{
		cfg:   cfg,
		plan:  plan,
		ctrl:  ctrl,
		clock: clock,
		jar:   jar,
		hook:  hook,
		state: models.WorkerState{
			ID:   id,
			Rand: rand.New(rand.NewSource(seed)),
		},
	}
}

// Stats returns the worker's final local tally, for the Supervisor to fold
// into the run-wide report.
func (w *Worker) Stats() models.WorkerStats { return w.state.Stats }

// Run executes the login URL once (if configured), then the main loop, and
// tears down the connection on exit.
func (w *Worker) Run(ctx context.Context) {
	defer w.closeConnection()

	// The login result counts in the stats like any other outer request; it
	// just never counts against the repetition budget.
	if login := w.plan.Login(); login != nil {
		w.state.Auth.ResetOuter()
		if w.ctrl.Run(&w.conn, *login, &w.state, w.cfg, w.hook) {
			w.state.Stats.Hits++
			w.clock.RecordSuccess()
		} else {
			w.clock.RecordFailure()
		}
	}

	deadlineBounded := w.cfg.DeadlineSecs > 0 && (w.cfg.Reps <= 0 || w.cfg.Reps == models.SentinelMax)
	if deadlineBounded {
		w.runDeadlineBounded(ctx)
	} else {
		w.runRepsBounded(ctx)
	}
}

// runDeadlineBounded is the wall-clock-bounded loop variant: the repetition
// counter plays no part.
func (w *Worker) runDeadlineBounded(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.clock.DeadlineReached() || w.clock.BudgetExceeded() {
			return
		}
		w.step()
	}
}

// runRepsBounded is the fixed-repetition loop variant.
func (w *Worker) runRepsBounded(ctx context.Context) {
	for i := 0; i < w.cfg.Reps; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.clock.DeadlineReached() || w.clock.BudgetExceeded() {
			return
		}
		w.step()
	}
}

// step is one main-loop iteration: pick the next URL, reset the outer bid
// counters, and drive the request to its verdict.
func (w *Worker) step() {
	tmpl, next := w.plan.Next(w.state.Rand, w.state.Cursor, w.cfg.InternetMode, w.onWrap)
	w.state.Cursor = next

	w.state.Auth.ResetOuter()

	if w.ctrl.Run(&w.conn, tmpl, &w.state, w.cfg, w.hook) {
		w.state.Stats.Hits++
		w.clock.RecordSuccess()
	} else {
		w.clock.RecordFailure()
	}
}

// onWrap fires exactly when sequential mode wraps the cursor back to the
// start of the plan; it expires this worker's own cookies when configured
// to, leaving every other worker's cookie state untouched.
func (w *Worker) onWrap() {
	if w.cfg.ExpireCookiesOnWrap && w.jar != nil {
		_ = w.jar.Reset(w.state.ID)
	}
}

func (w *Worker) closeConnection() {
	if w.conn != nil {
		w.conn.EndReuse()
	}
}
