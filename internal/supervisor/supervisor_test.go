package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onslaught-http/onslaught/internal/controller"
	"github.com/onslaught-http/onslaught/internal/cookiejar"
	"github.com/onslaught-http/onslaught/internal/engine"
	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/models"
)

func newRawServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for {
					req, err := http.ReadRequest(br)
					if err != nil {
						return
					}
					io.Copy(io.Discard, req.Body)
					req.Body.Close()
					body := "ok"
					fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
				}
			}()
		}
	}()

	ta := ln.Addr().(*net.TCPAddr)
	return ta.IP.String(), ta.Port
}

// Run spawns cfg.Concurrency workers and folds their per-worker stats into
// one Report, with every worker's hits counted exactly once.
func TestRunFoldsReportAcrossWorkers(t *testing.T) {
	host, port := newRawServer(t)
	plan := &models.UrlPlan{Templates: []models.UrlTemplate{
		{Protocol: models.ProtocolHTTP, Host: host, Port: port, Path: "/a", Method: models.MethodGET},
	}}

	cfg := &models.RunConfig{Concurrency: 4, Reps: 3, ConnMax: 1, AuthBids: 1, SocketTimeout: 2 * time.Second}

	jar, err := cookiejar.New()
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	clock, err := runstate.New(cfg.DeadlineSecs, cfg.FailureBudget, cfg.StopIfErrorRate, cfg.MinSamples)
	if err != nil {
		t.Fatalf("runstate.New: %v", err)
	}
	eng := engine.New(cfg.Proxy, jar)
	ctrl := controller.New(eng, clock)
	p := urlplan.New(plan)

	var hookCalls int64
	sup := New(cfg, p, ctrl, clock, jar, func(workerID int, tmpl models.UrlTemplate, result models.TxResult) {
		atomic.AddInt64(&hookCalls, 1)
	})

	report := sup.Run(context.Background())
	if report.Hits != 12 {
		t.Fatalf("hits = %d, want 12 (4 workers x 3 reps)", report.Hits)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d, want 0", report.Failed)
	}
	if report.Concurrency != 4 {
		t.Fatalf("concurrency = %d, want 4", report.Concurrency)
	}
	if n := atomic.LoadInt64(&hookCalls); n != 12 {
		t.Fatalf("hook calls = %d, want 12", n)
	}
}

// A deadline-only run (no reps ceiling) is cancelled promptly once the
// clock's deadline passes, even though every worker would otherwise loop
// forever.
func TestRunStopsAtDeadline(t *testing.T) {
	host, port := newRawServer(t)
	plan := &models.UrlPlan{Templates: []models.UrlTemplate{
		{Protocol: models.ProtocolHTTP, Host: host, Port: port, Path: "/a", Method: models.MethodGET},
	}}

	cfg := &models.RunConfig{Concurrency: 2, DeadlineSecs: 1, ConnMax: 1, AuthBids: 1, SocketTimeout: 2 * time.Second}

	jar, err := cookiejar.New()
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	clock, err := runstate.New(cfg.DeadlineSecs, cfg.FailureBudget, cfg.StopIfErrorRate, cfg.MinSamples)
	if err != nil {
		t.Fatalf("runstate.New: %v", err)
	}
	eng := engine.New(cfg.Proxy, jar)
	ctrl := controller.New(eng, clock)
	p := urlplan.New(plan)
	sup := New(cfg, p, ctrl, clock, jar, nil)

	start := time.Now()
	report := sup.Run(context.Background())
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("run took %v, want it to stop near the 1s deadline", elapsed)
	}
	if report.Hits == 0 {
		t.Fatalf("expected at least one hit before the deadline stopped the run")
	}
}
