// Command onslaught is the CLI entry point: flag parsing, config-file/flag
// precedence, signal-driven graceful shutdown, and wiring the Supervisor to
// the Reporter.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/onslaught-http/onslaught/internal/controller"
	"github.com/onslaught-http/onslaught/internal/cookiejar"
	"github.com/onslaught-http/onslaught/internal/debug"
	"github.com/onslaught-http/onslaught/internal/engine"
	"github.com/onslaught-http/onslaught/internal/report"
	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/internal/supervisor"
	"github.com/onslaught-http/onslaught/internal/tui"
	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/config"
	"github.com/onslaught-http/onslaught/pkg/models"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("\nfatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	runtime.GOMAXPROCS(runtime.NumCPU())

	var (
		configPath string
		urlsFlag   string
		urlFile    string
		method     string
		concurrency int
		reps        int
		deadline    int
		internetMode bool
		keepalive    bool
		connMax      int
		delayMaxMS   int
		followRedirects bool
		authBids        int
		authUser        string
		authPass        string
		proxyAddr       string
		verbose    bool
		csvPath    string
		timestamp  bool
		mark       string
		fullURL    bool
		zeroOK     bool
		failureBudget int
		wizard     bool
		dashboard  bool
		debugMode  bool
	)

	flag.StringVar(&configPath, "config", "", "path to YAML run file")
	flag.StringVar(&configPath, "f", "", "path to YAML run file (shorthand)")
	flag.StringVar(&urlsFlag, "url", "", "comma-separated target URLs (overrides config urls)")
	flag.StringVar(&urlFile, "url-file", "", "path to a standalone YAML URL-list file (overrides config/-url urls)")
	flag.StringVar(&method, "method", "", "HTTP method for -url targets (GET or POST)")
	flag.IntVar(&concurrency, "concurrency", 0, "number of concurrent workers")
	flag.IntVar(&reps, "reps", 0, "repetitions per worker (0 with -deadline means wall-clock bounded)")
	flag.IntVar(&deadline, "deadline", 0, "wall-clock run length in seconds")
	flag.BoolVar(&internetMode, "internet", false, "pick the next URL at random instead of sequentially")
	flag.BoolVar(&keepalive, "keepalive", false, "reuse connections across transactions")
	flag.IntVar(&connMax, "connection-max", 0, "requests served per connection before forced close")
	flag.IntVar(&delayMaxMS, "delay-max-ms", 0, "upper bound, in ms, of per-request jitter sleep")
	flag.BoolVar(&followRedirects, "follow-redirects", false, "follow 301/302 redirects")
	flag.IntVar(&authBids, "auth-bids", 0, "maximum authentication rebids per URL per worker")
	flag.StringVar(&authUser, "auth-user", "", "username offered on 401/407 challenges")
	flag.StringVar(&authPass, "auth-pass", "", "password offered on 401/407 challenges")
	flag.StringVar(&proxyAddr, "proxy", "", "forward proxy host:port")
	flag.BoolVar(&verbose, "verbose", false, "print a colored line per transaction")
	flag.StringVar(&csvPath, "csv", "", "write a CSV record stream to this path")
	flag.BoolVar(&timestamp, "timestamp", false, "prefix verbose lines with a timestamp")
	flag.StringVar(&mark, "mark", "", "tag every CSV row with this label")
	flag.BoolVar(&fullURL, "fullurl", false, "render the full URL instead of just the path in output")
	flag.BoolVar(&zeroOK, "zero-ok", false, "tolerate a zero-byte response body")
	flag.IntVar(&failureBudget, "failure-budget", 0, "abort the run after this many failures (0 = unlimited)")
	flag.BoolVar(&wizard, "wizard", false, "launch the interactive setup wizard instead of reading a config file")
	flag.BoolVar(&dashboard, "dashboard", false, "show a live progress dashboard instead of per-transaction lines")
	flag.BoolVar(&debugMode, "debug", false, "run a single diagnostic transaction and print request/response detail instead of a full run")
	flag.Parse()

	var cfg *models.RunConfig
	var plan *models.UrlPlan

	switch {
	case wizard:
		wizardCfg, wizardPlan, err := tui.RunWizard()
		if err != nil {
			fmt.Printf("setup wizard: %v\n", err)
			os.Exit(1)
		}
		cfg, plan = wizardCfg, wizardPlan
	case configPath != "":
		loadedCfg, loadedPlan, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("error loading config file: %v\n", err)
			os.Exit(1)
		}
		cfg, plan = loadedCfg, loadedPlan
	case urlsFlag == "" && urlFile == "":
		fmt.Println("no -config, -url, -url-file, or -wizard given; run with -wizard for an interactive setup")
		os.Exit(1)
	default:
		cfg = &models.RunConfig{}
		plan = &models.UrlPlan{}
	}

	applyFlagOverrides(cfg, flagOverrides{
		concurrency: concurrency, reps: reps, deadline: deadline,
		internetMode: internetMode, keepalive: keepalive, connMax: connMax,
		delayMaxMS: delayMaxMS, followRedirects: followRedirects, authBids: authBids,
		authUser: authUser, authPass: authPass, proxyAddr: proxyAddr,
		verbose: verbose, csvPath: csvPath, timestamp: timestamp, mark: mark,
		fullURL: fullURL, zeroOK: zeroOK, failureBudget: failureBudget,
	})

	switch {
	case urlFile != "":
		loadedPlan, err := urlplan.LoadFile(urlFile)
		if err != nil {
			fmt.Printf("invalid -url-file: %v\n", err)
			os.Exit(1)
		}
		plan = loadedPlan
	case urlsFlag != "":
		raws := strings.Split(urlsFlag, ",")
		m := models.MethodGET
		if strings.EqualFold(method, "POST") {
			m = models.MethodPOST
		}
		loadedPlan, err := urlplan.FromURLs(raws, m)
		if err != nil {
			fmt.Printf("invalid -url: %v\n", err)
			os.Exit(1)
		}
		plan = loadedPlan
	}

	if cfg.ConnMax == 0 {
		cfg.ConnMax = 1
	}
	if cfg.AuthBids == 0 {
		cfg.AuthBids = 1
	}
	if cfg.SocketTimeout == 0 {
		cfg.SocketTimeout = 30 * time.Second
	}
	if cfg.Reps == 0 && cfg.DeadlineSecs == 0 {
		cfg.Reps = 1
	}

	if err := config.Validate(cfg, plan); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if debugMode {
		jar, err := cookiejar.New()
		if err != nil {
			fmt.Printf("error building cookie jar: %v\n", err)
			os.Exit(1)
		}
		clock, err := runstate.New(0, 0, "", 0)
		if err != nil {
			fmt.Printf("error building run clock: %v\n", err)
			os.Exit(1)
		}
		ctrl := controller.New(engine.New(cfg.Proxy, jar), clock)
		if err := debug.Run(ctrl, cfg, plan); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nreceived interrupt, shutting down workers...")
		cancel()
	}()

	exitCode := run(ctx, cfg, plan, csvPath, dashboard)
	cancel()
	os.Exit(exitCode)
}

func run(ctx context.Context, cfg *models.RunConfig, plan *models.UrlPlan, csvPath string, dashboard bool) int {
	jar, err := cookiejar.New()
	if err != nil {
		fmt.Printf("error building cookie jar: %v\n", err)
		return 1
	}

	stopIfMinSamples := cfg.MinSamples
	clock, err := runstate.New(cfg.DeadlineSecs, cfg.FailureBudget, cfg.StopIfErrorRate, stopIfMinSamples)
	if err != nil {
		fmt.Printf("error building run clock: %v\n", err)
		return 1
	}

	rep, err := report.New(cfg, csvPath, os.Stdout)
	if err != nil {
		fmt.Printf("error building reporter: %v\n", err)
		return 1
	}
	defer rep.Close()
	if dashboard {
		rep.Verbose = false
	}

	eng := engine.New(cfg.Proxy, jar)
	ctrl := controller.New(eng, clock)
	p := urlplan.New(plan)
	sup := supervisor.New(cfg, p, ctrl, clock, jar, rep.Transaction)

	var result models.Report
	if dashboard {
		done := make(chan struct{})
		dashExited := make(chan error, 1)
		go func() {
			dashExited <- tui.Run(cfg, clock, done)
		}()
		result = sup.Run(ctx)
		close(done)
		if dashErr := <-dashExited; dashErr != nil {
			fmt.Printf("dashboard error: %v\n", dashErr)
		}
	} else {
		result = sup.Run(ctx)
	}

	result.RunID = rep.RunID
	result.TargetSummary = targetSummary(plan)
	fmt.Println(rep.Summary(result))

	return report.ExitCode(cfg, result)
}

// targetSummary condenses the plan into a one-line description for the
// final report header.
func targetSummary(plan *models.UrlPlan) string {
	if plan == nil || plan.Len() == 0 {
		return ""
	}
	s := plan.Templates[0].URL()
	if plan.Len() > 1 {
		s += fmt.Sprintf(" (+%d more)", plan.Len()-1)
	}
	return s
}

// splitHostPort parses a "host:port" proxy address flag into its parts.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

type flagOverrides struct {
	concurrency, reps, deadline, connMax, delayMaxMS, authBids, failureBudget int
	internetMode, keepalive, followRedirects, verbose, timestamp, fullURL, zeroOK bool
	authUser, authPass, proxyAddr, csvPath, mark string
}

// applyFlagOverrides layers command-line flags over a loaded config file,
// a flag taking precedence whenever it carries a non-zero (or true) value;
// a flag left at its zero value keeps the file's setting.
func applyFlagOverrides(cfg *models.RunConfig, f flagOverrides) {
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}
	if f.reps > 0 {
		cfg.Reps = f.reps
	}
	if f.deadline > 0 {
		cfg.DeadlineSecs = f.deadline
	}
	if f.internetMode {
		cfg.InternetMode = true
	}
	if f.keepalive {
		cfg.Keepalive = true
	}
	if f.connMax > 0 {
		cfg.ConnMax = f.connMax
	}
	if f.delayMaxMS > 0 {
		cfg.DelayMaxMS = f.delayMaxMS
	}
	if f.followRedirects {
		cfg.FollowRedirects = true
	}
	if f.authBids > 0 {
		cfg.AuthBids = f.authBids
	}
	if f.authUser != "" {
		cfg.AuthUsername = f.authUser
	}
	if f.authPass != "" {
		cfg.AuthPassword = f.authPass
	}
	if f.proxyAddr != "" {
		host, port, err := splitHostPort(f.proxyAddr)
		if err == nil {
			cfg.Proxy = models.ProxyConfig{Required: true, Host: host, Port: port}
		}
	}
	if f.verbose {
		cfg.Verbose = true
	}
	if f.csvPath != "" {
		cfg.CSV = true
	}
	if f.timestamp {
		cfg.Timestamp = true
	}
	if f.mark != "" {
		cfg.Mark = f.mark
	}
	if f.fullURL {
		cfg.FullURL = true
	}
	if f.zeroOK {
		cfg.ZeroOK = true
	}
	if f.failureBudget > 0 {
		cfg.FailureBudget = f.failureBudget
	}
}
