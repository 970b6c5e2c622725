// Package config loads a YAML run file into a models.RunConfig plus
// models.UrlPlan, and validates a RunConfig before a run starts.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/models"
	"gopkg.in/yaml.v3"
)

// unknownFieldPattern extracts the offending key name out of yaml.v3's
// strict-decode error text ("line 3: field concurrncy not found in type ...").
var unknownFieldPattern = regexp.MustCompile(`field (\S+) not found`)

// yamlURL mirrors urlplan's on-disk entry shape, duplicated here so the run
// file can carry both the run options and the URL list in one document.
type yamlURL struct {
	URL    string `yaml:"url"`
	Method string `yaml:"method,omitempty"`
	Body   string `yaml:"body,omitempty"`
}

// yamlConfig is the on-disk shape of a full run file.
type yamlConfig struct {
	Run struct {
		Concurrency         int    `yaml:"concurrency"`
		Reps                int    `yaml:"reps,omitempty"`
		DeadlineSecs        int    `yaml:"deadline_secs,omitempty"`
		InternetMode        bool   `yaml:"internet_mode,omitempty"`
		Keepalive           bool   `yaml:"keepalive,omitempty"`
		ConnectionMax       int    `yaml:"connection_max,omitempty"`
		DelayMaxMS          int    `yaml:"delay_max_ms,omitempty"`
		FollowRedirects     bool   `yaml:"follow_redirects,omitempty"`
		AuthBids            int    `yaml:"auth_bids,omitempty"`
		ExpireCookiesOnWrap bool   `yaml:"expire_cookies_on_wrap,omitempty"`
		FailureBudget       int    `yaml:"failure_budget,omitempty"`
		StopIfErrorRate     string `yaml:"stop_if,omitempty"`
		MinSamples          int64  `yaml:"min_samples,omitempty"`
		SocketTimeout       string `yaml:"socket_timeout,omitempty"`
	} `yaml:"run"`

	Report struct {
		Verbose   bool   `yaml:"verbose,omitempty"`
		CSV       bool   `yaml:"csv,omitempty"`
		Timestamp bool   `yaml:"timestamp,omitempty"`
		Mark      string `yaml:"mark,omitempty"`
		FullURL   bool   `yaml:"fullurl,omitempty"`
		ZeroOK    bool   `yaml:"zero_ok,omitempty"`
	} `yaml:"report"`

	Proxy struct {
		Host string `yaml:"host,omitempty"`
		Port int    `yaml:"port,omitempty"`
	} `yaml:"proxy,omitempty"`

	Login *yamlURL  `yaml:"login,omitempty"`
	URLs  []yamlURL `yaml:"urls"`
}

// Load reads a YAML run file into a RunConfig and UrlPlan.
func Load(path string) (*models.RunConfig, *models.UrlPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil {
		return nil, nil, unknownFieldError(err)
	}

	cfg := &models.RunConfig{
		Concurrency:         y.Run.Concurrency,
		Reps:                y.Run.Reps,
		DeadlineSecs:        y.Run.DeadlineSecs,
		InternetMode:        y.Run.InternetMode,
		Keepalive:           y.Run.Keepalive,
		ConnMax:             y.Run.ConnectionMax,
		DelayMaxMS:          y.Run.DelayMaxMS,
		FollowRedirects:     y.Run.FollowRedirects,
		AuthBids:            y.Run.AuthBids,
		ExpireCookiesOnWrap: y.Run.ExpireCookiesOnWrap,
		FailureBudget:       y.Run.FailureBudget,
		StopIfErrorRate:     y.Run.StopIfErrorRate,
		MinSamples:          y.Run.MinSamples,
		Verbose:             y.Report.Verbose,
		CSV:                 y.Report.CSV,
		Timestamp:           y.Report.Timestamp,
		Mark:                y.Report.Mark,
		FullURL:             y.Report.FullURL,
		ZeroOK:              y.Report.ZeroOK,
	}

	if y.Run.SocketTimeout != "" {
		d, err := time.ParseDuration(y.Run.SocketTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid socket_timeout: %w", err)
		}
		cfg.SocketTimeout = d
	}

	if y.Proxy.Host != "" {
		cfg.Proxy = models.ProxyConfig{Required: true, Host: y.Proxy.Host, Port: y.Proxy.Port}
	}

	applyDefaults(cfg)

	plan := &models.UrlPlan{}
	for i, u := range y.URLs {
		tmpl, err := urlplan.ParseURL(u.URL, models.Method(u.Method), []byte(u.Body), i)
		if err != nil {
			return nil, nil, fmt.Errorf("urls[%d]: %w", i, err)
		}
		plan.Templates = append(plan.Templates, tmpl)
	}
	if y.Login != nil {
		login, err := urlplan.ParseURL(y.Login.URL, models.Method(y.Login.Method), []byte(y.Login.Body), -1)
		if err != nil {
			return nil, nil, fmt.Errorf("login: %w", err)
		}
		plan.Login = &login
	}

	return cfg, plan, nil
}

// unknownFieldError rewrites a strict-decode error for an unrecognized YAML
// key into the same structured ValidationError/did-you-mean format Validate
// uses, when a plausible typo correction exists among yamlConfig's actual
// field names; otherwise it returns the decode error wrapped as a parse
// failure.
func unknownFieldError(err error) error {
	m := unknownFieldPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	suggestion := SuggestField(m[1])
	if suggestion == "" {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	result := &ValidationResult{}
	result.Add(ValidationError{
		Field:      m[1],
		Message:    "unrecognized config key",
		DidYouMean: suggestion,
	})
	return fmt.Errorf("failed to parse config file:%s", result.FormatErrors())
}

// applyDefaults fills in the implicit defaults a bare run file leaves out.
func applyDefaults(cfg *models.RunConfig) {
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
}

// Validate checks a RunConfig plus its plan before a run starts and reports
// every problem at once, with structured hint/did-you-mean diagnostics,
// rather than failing on the first error.
func Validate(cfg *models.RunConfig, plan *models.UrlPlan) error {
	result := &ValidationResult{}

	if cfg.Concurrency <= 0 {
		result.Add(ValidationError{
			Field:    "concurrency",
			Value:    fmt.Sprintf("%d", cfg.Concurrency),
			Message:  "concurrency must be greater than 0",
			Expected: "positive integer (e.g., 10)",
			Hint:     GetHint("concurrency"),
		})
	}

	if cfg.Reps <= 0 && cfg.DeadlineSecs <= 0 {
		result.Add(ValidationError{
			Field:   "reps / deadline_secs",
			Message: "a run needs a positive reps count or a positive deadline_secs",
			Hint:    GetHint("reps"),
		})
	}

	if cfg.ConnMax < 1 {
		result.Add(ValidationError{
			Field:    "connection_max",
			Value:    fmt.Sprintf("%d", cfg.ConnMax),
			Message:  "connection_max must be at least 1",
			Expected: "positive integer; 1 disables connection reuse",
			Hint:     GetHint("connection_max"),
		})
	}

	if cfg.AuthBids < 1 {
		result.Add(ValidationError{
			Field:    "auth_bids",
			Value:    fmt.Sprintf("%d", cfg.AuthBids),
			Message:  "auth_bids must be at least 1",
			Expected: "positive integer (e.g., 3)",
			Hint:     GetHint("auth_bids"),
		})
	}

	if cfg.DelayMaxMS < 0 {
		result.Add(ValidationError{
			Field:    "delay_max_ms",
			Value:    fmt.Sprintf("%d", cfg.DelayMaxMS),
			Message:  "delay_max_ms cannot be negative",
			Expected: "non-negative integer milliseconds",
			Hint:     GetHint("delay_max_ms"),
		})
	}

	if plan == nil || plan.Len() == 0 {
		result.Add(ValidationError{
			Field:   "urls",
			Message: "at least one URL template is required",
			Hint:    GetHint("urls"),
		})
	}

	if cfg.Proxy.Required && cfg.Proxy.Host == "" {
		result.Add(ValidationError{
			Field:   "proxy.host",
			Message: "proxy is configured but has no host",
		})
	}

	if result.HasErrors() {
		return fmt.Errorf("%s", result.FormatErrors())
	}
	return nil
}
