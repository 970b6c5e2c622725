package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// DashboardModel is a live view of one run's progress: a progress bar
// driven by periodic snapshots of the shared clock's failed/attempts
// counters.
type DashboardModel struct {
	cfg   *models.RunConfig
	clock *runstate.Clock
	done  <-chan struct{}

	bar       progress.Model
	start     time.Time
	failed    int64
	attempts  int64
	finished  bool
}

type tickMsg time.Time
type runDoneMsg struct{}

// NewDashboard builds the model; done is closed by the caller once the
// Supervisor's Run has returned.
func NewDashboard(cfg *models.RunConfig, clock *runstate.Clock, done <-chan struct{}) *DashboardModel {
	return &DashboardModel{
		cfg:   cfg,
		clock: clock,
		done:  done,
		bar:   progress.New(progress.WithScaledGradient("#00FFFF", "#FF6B9D"), progress.WithoutPercentage()),
		start: time.Now(),
	}
}

func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForDone(m.done))
}

func tickCmd() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return runDoneMsg{}
	}
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		failed, attempts, _, _ := m.clock.Snapshot()
		m.failed, m.attempts = failed, attempts
		if m.finished {
			return m, nil
		}
		return m, tickCmd()
	case runDoneMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *DashboardModel) View() string {
	pct := m.fraction()
	label := fmt.Sprintf("attempts=%d failed=%d elapsed=%s", m.attempts, m.failed, time.Since(m.start).Round(time.Second))
	return lipgloss.NewStyle().MarginLeft(1).Render(m.bar.ViewAs(pct) + "  " + label)
}

// fraction estimates run completion: time-based when a deadline is
// configured, attempt-count-based otherwise.
func (m *DashboardModel) fraction() float64 {
	if m.cfg.DeadlineSecs > 0 {
		elapsed := time.Since(m.start).Seconds()
		f := elapsed / float64(m.cfg.DeadlineSecs)
		if f > 1 {
			f = 1
		}
		return f
	}
	target := m.cfg.Reps * m.cfg.Concurrency
	if target <= 0 {
		return 0
	}
	f := float64(m.attempts) / float64(target)
	if f > 1 {
		f = 1
	}
	return f
}

// Run drives the dashboard to completion (blocks until done is closed).
func Run(cfg *models.RunConfig, clock *runstate.Clock, done <-chan struct{}) error {
	p := tea.NewProgram(NewDashboard(cfg, clock, done))
	_, err := p.Run()
	return err
}
