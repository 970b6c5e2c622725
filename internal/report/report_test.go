package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onslaught-http/onslaught/pkg/models"
)

func TestExitCodeReflectsFailureBudget(t *testing.T) {
	cfg := &models.RunConfig{FailureBudget: 2}
	if ExitCode(cfg, models.Report{Failed: 1}) != 0 {
		t.Fatalf("exit code should be 0 when failed < budget")
	}
	if ExitCode(cfg, models.Report{Failed: 2}) != 1 {
		t.Fatalf("exit code should be non-zero once failed >= budget")
	}
}

func TestExitCodeZeroWhenUnlimited(t *testing.T) {
	cfg := &models.RunConfig{FailureBudget: 0}
	if ExitCode(cfg, models.Report{Failed: 1000}) != 0 {
		t.Fatalf("a failure_budget of 0 means unlimited, exit code must stay 0")
	}
}

func TestTransactionWritesVerboseLine(t *testing.T) {
	cfg := &models.RunConfig{Verbose: true}
	var buf bytes.Buffer
	r, err := New(cfg, "", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tmpl := models.UrlTemplate{URLID: 3, Path: "/a"}
	r.Transaction(1, tmpl, models.TxResult{OK: true, Status: 200, Bytes: 10})
	if !strings.Contains(buf.String(), "/a") {
		t.Fatalf("verbose line should contain the path, got %q", buf.String())
	}
}

func TestSummaryRendersStatusAndErrorCounts(t *testing.T) {
	cfg := &models.RunConfig{}
	r, err := New(cfg, "", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := r.Summary(models.Report{
		RunID:       "test-run",
		Hits:        3,
		StatusCodes: map[string]int{"200": 3, "500": 1},
		Errors:      map[string]int{"connect_refused": 2},
	})
	for _, want := range []string{"test-run", "200:3", "500:1", "connect_refused:2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestTransactionWritesCSVRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	cfg := &models.RunConfig{CSV: true}
	r, err := New(cfg, path, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tmpl := models.UrlTemplate{URLID: 1, Path: "/a"}
	r.Transaction(0, tmpl, models.TxResult{OK: true, Status: 200, Bytes: 5})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a header and one data row, got %d lines: %q", len(lines), data)
	}
}
