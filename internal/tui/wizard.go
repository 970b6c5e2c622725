package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// wizardAnswers holds the string-typed form bindings huh needs; RunWizard
// converts them into a RunConfig/UrlPlan once the form completes.
type wizardAnswers struct {
	url             string
	method          string
	concurrency     string
	reps            string
	deadlineSecs    string
	keepalive       bool
	connectionMax   string
	followRedirects bool
	authBids        string
	verbose         bool
}

// RunWizard walks the operator through RunConfig's options interactively
// and returns the RunConfig plus a single-URL plan built from the answers.
func RunWizard() (*models.RunConfig, *models.UrlPlan, error) {
	a := &wizardAnswers{
		method:        "GET",
		concurrency:   "10",
		reps:          "1",
		deadlineSecs:  "0",
		connectionMax: "1",
		authBids:      "1",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target URL").
				Placeholder("http://example.com/path").
				Value(&a.url).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return fmt.Errorf("url must start with http:// or https://")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("HTTP Method").
				Options(huh.NewOption("GET", "GET"), huh.NewOption("POST", "POST")).
				Value(&a.method),
		),
		huh.NewGroup(
			huh.NewInput().Title("Concurrency (N)").Value(&a.concurrency),
			huh.NewInput().Title("Repetitions per worker (0 = wall-clock bounded)").Value(&a.reps),
			huh.NewInput().Title("Deadline, in seconds (0 = none)").Value(&a.deadlineSecs),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reuse connections (keepalive)?").Value(&a.keepalive),
			huh.NewInput().Title("Requests per connection before forced close").Value(&a.connectionMax),
			huh.NewConfirm().Title("Follow redirects?").Value(&a.followRedirects),
			huh.NewInput().Title("Max authentication rebids per URL").Value(&a.authBids),
			huh.NewConfirm().Title("Verbose per-transaction output?").Value(&a.verbose),
		),
	).WithTheme(MakeNeonTheme())

	if err := form.Run(); err != nil {
		return nil, nil, fmt.Errorf("setup wizard: %w", err)
	}

	return a.toRunConfig()
}

func (a *wizardAnswers) toRunConfig() (*models.RunConfig, *models.UrlPlan, error) {
	concurrency, err := parsePositiveInt(a.concurrency, "concurrency")
	if err != nil {
		return nil, nil, err
	}
	reps, err := strconv.Atoi(a.reps)
	if err != nil {
		return nil, nil, fmt.Errorf("reps: %w", err)
	}
	deadline, err := strconv.Atoi(a.deadlineSecs)
	if err != nil {
		return nil, nil, fmt.Errorf("deadline_secs: %w", err)
	}
	connMax, err := parsePositiveInt(a.connectionMax, "connection_max")
	if err != nil {
		return nil, nil, err
	}
	authBids, err := parsePositiveInt(a.authBids, "auth_bids")
	if err != nil {
		return nil, nil, err
	}

	method := models.MethodGET
	if strings.EqualFold(a.method, "POST") {
		method = models.MethodPOST
	}
	tmpl, err := urlplan.ParseURL(a.url, method, nil, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("url: %w", err)
	}

	cfg := &models.RunConfig{
		Concurrency:     concurrency,
		Reps:            reps,
		DeadlineSecs:    deadline,
		Keepalive:       a.keepalive,
		ConnMax:         connMax,
		FollowRedirects: a.followRedirects,
		AuthBids:        authBids,
		Verbose:         a.verbose,
	}
	plan := &models.UrlPlan{Templates: []models.UrlTemplate{tmpl}}
	return cfg, plan, nil
}

func parsePositiveInt(s, field string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", field)
	}
	return n, nil
}
