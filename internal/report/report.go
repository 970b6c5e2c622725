// Package report renders a run's output: a colored verbose line per
// transaction, an optional CSV record stream, and the final run summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/onslaught-http/onslaught/pkg/models"
)

var (
	blueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	cyanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	magentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B9D"))
	redStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))

	successHeading = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF88")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Reporter renders per-transaction diagnostics and the final summary.
type Reporter struct {
	RunID string

	Verbose   bool
	CSV       bool
	Timestamp bool
	Mark      string
	FullURL   bool

	out       io.Writer
	csvWriter *csv.Writer
	csvFile   *os.File
}

// New builds a Reporter. If cfg.CSV is set, path names the CSV file to
// create; pass "" to disable CSV output even when cfg.CSV is true.
func New(cfg *models.RunConfig, csvPath string, out io.Writer) (*Reporter, error) {
	if out == nil {
		out = os.Stdout
	}
	r := &Reporter{
		RunID:     uuid.NewString(),
		Verbose:   cfg.Verbose,
		CSV:       cfg.CSV,
		Timestamp: cfg.Timestamp,
		Mark:      cfg.Mark,
		FullURL:   cfg.FullURL,
		out:       out,
	}
	if r.CSV && csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("creating csv file: %w", err)
		}
		r.csvFile = f
		r.csvWriter = csv.NewWriter(f)
		header := []string{"worker_id", "timestamp", "status_head", "status_code", "elapsed_secs", "bytes", "url", "urlid"}
		if r.Mark != "" {
			header = append(header, "mark")
		}
		if err := r.csvWriter.Write(header); err != nil {
			return nil, fmt.Errorf("writing csv header: %w", err)
		}
	}
	return r, nil
}

// Close flushes and closes the CSV file, if one is open.
func (r *Reporter) Close() error {
	if r.csvWriter != nil {
		r.csvWriter.Flush()
	}
	if r.csvFile != nil {
		return r.csvFile.Close()
	}
	return nil
}

// Transaction satisfies controller.TxHook: it's invoked once per hop
// (original request, each redirect, each auth rebid) with that hop's
// result.
func (r *Reporter) Transaction(workerID int, tmpl models.UrlTemplate, result models.TxResult) {
	status, statusHead := classify(result)

	if r.Verbose {
		r.printLine(workerID, tmpl, result, status, statusHead)
	}
	if r.csvWriter != nil {
		r.writeCSV(workerID, tmpl, result, statusHead)
	}
}

func classify(result models.TxResult) (int, string) {
	if !result.OK {
		if result.Fail != nil {
			return 0, result.Fail.Kind.String()
		}
		return 0, "error"
	}
	return result.Status, fmt.Sprintf("%d", result.Status)
}

func (r *Reporter) printLine(workerID int, tmpl models.UrlTemplate, result models.TxResult, status int, statusHead string) {
	style := colorFor(status)
	target := tmpl.Path
	if r.FullURL {
		target = tmpl.URL()
	}

	line := fmt.Sprintf("[w%02d] %s %6.3fs %8db %s (urlid=%d)",
		workerID, statusHead, result.Elapsed.Seconds(), result.Bytes, target, tmpl.URLID)
	if r.Timestamp {
		line = time.Now().Format("15:04:05.000") + " " + line
	}
	fmt.Fprintln(r.out, style.Render(line))
}

func colorFor(status int) lipgloss.Style {
	switch {
	case status >= 200 && status < 300:
		return blueStyle
	case status >= 300 && status < 400:
		return cyanStyle
	case status >= 400 && status < 500:
		return magentaStyle
	default:
		return redStyle
	}
}

func (r *Reporter) writeCSV(workerID int, tmpl models.UrlTemplate, result models.TxResult, statusHead string) {
	target := tmpl.Path
	if r.FullURL {
		target = tmpl.URL()
	}
	row := []string{
		fmt.Sprintf("%d", workerID),
		time.Now().Format(time.RFC3339),
		statusHead,
		fmt.Sprintf("%d", result.Status),
		fmt.Sprintf("%.6f", result.Elapsed.Seconds()),
		fmt.Sprintf("%d", result.Bytes),
		target,
		fmt.Sprintf("%d", tmpl.URLID),
	}
	if r.Mark != "" {
		row = append(row, r.Mark)
	}
	_ = r.csvWriter.Write(row)
	r.csvWriter.Flush()
}

// Summary renders the final run report.
func (r *Reporter) Summary(rep models.Report) string {
	runID := rep.RunID
	if runID == "" {
		runID = r.RunID
	}

	out := ""
	out += successHeading.Render(fmt.Sprintf("run %s complete", runID)) + "\n"
	if rep.TargetSummary != "" {
		out += labelStyle.Render("target    ") + " " + rep.TargetSummary + "\n"
	}
	out += labelStyle.Render("concurrency") + fmt.Sprintf(" %d\n", rep.Concurrency)
	out += labelStyle.Render("elapsed   ") + fmt.Sprintf(" %s\n", rep.Elapsed.Round(time.Millisecond))
	out += labelStyle.Render("hits      ") + fmt.Sprintf(" %d\n", rep.Hits)
	out += labelStyle.Render("failed    ") + fmt.Sprintf(" %d\n", rep.Failed)
	out += labelStyle.Render("bytes     ") + fmt.Sprintf(" %d\n", rep.Bytes)
	out += labelStyle.Render("ok200     ") + fmt.Sprintf(" %d\n", rep.OK200)
	out += labelStyle.Render("total_time") + fmt.Sprintf(" %.3fs\n", rep.TotalTime)
	out += labelStyle.Render("high/low  ") + fmt.Sprintf(" %.6fs / %.6fs\n", rep.HighTime, rep.LowTime)
	out += labelStyle.Render("p50/p90/p99") + fmt.Sprintf(" %s / %s / %s\n", rep.P50, rep.P90, rep.P99)
	if len(rep.StatusCodes) > 0 {
		out += labelStyle.Render("status    ") + " " + countsLine(rep.StatusCodes) + "\n"
	}
	if len(rep.Errors) > 0 {
		out += labelStyle.Render("errors    ") + " " + countsLine(rep.Errors) + "\n"
	}
	return out
}

// countsLine renders a count map as "200:40 302:4 connect_refused:1" with
// stable key ordering.
func countsLine(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// ExitCode returns the process exit code: non-zero when the failure budget
// terminated the run.
func ExitCode(cfg *models.RunConfig, rep models.Report) int {
	if cfg.FailureBudget > 0 && rep.Failed >= int64(cfg.FailureBudget) {
		return 1
	}
	return 0
}
