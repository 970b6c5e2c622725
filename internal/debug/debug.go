// Package debug is the single-transaction diagnostic mode: it runs exactly
// one outer request through the real Controller and Engine, so redirects
// and auth rebids behave the same as in a full run, and prints each hop's
// response in detail.
package debug

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/onslaught-http/onslaught/internal/controller"
	"github.com/onslaught-http/onslaught/internal/transport"
	"github.com/onslaught-http/onslaught/pkg/models"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
)

// Run executes one outer request against plan's first URL template and
// prints request/response detail for each hop (original request plus any
// redirect or auth rebid the Controller follows).
func Run(ctrl *controller.Controller, cfg *models.RunConfig, plan *models.UrlPlan) error {
	fmt.Println()
	fmt.Printf("%s%sSTARTING DEBUG MODE (dry run)%s\n", colorBold, colorCyan, colorReset)
	if len(plan.Templates) == 0 {
		return fmt.Errorf("debug mode: no URL templates in plan")
	}
	tmpl := plan.Templates[0]
	fmt.Printf("%sRunning one transaction against %s%s\n\n", colorDim, tmpl.URL(), colorReset)

	ws := &models.WorkerState{ID: 0, Rand: rand.New(rand.NewSource(1))}
	var conn *transport.Connection
	hop := 0

	ok := ctrl.Run(&conn, tmpl, ws, cfg, func(workerID int, hopTmpl models.UrlTemplate, result models.TxResult) {
		hop++
		printStepHeader(hop, hopTmpl)
		printAuthState(ws.Auth)
		if result.Fail != nil {
			printFailure(result)
			return
		}
		printResponse(result)
	})
	if conn != nil {
		conn.Close()
	}

	printSeparator()
	if ok {
		fmt.Printf("%s%sDEBUG SESSION COMPLETED SUCCESSFULLY%s\n\n", colorBold, colorGreen, colorReset)
	} else {
		fmt.Printf("%s%sDEBUG SESSION COMPLETED WITH ERRORS%s\n\n", colorBold, colorRed, colorReset)
	}
	return nil
}

func printStepHeader(hop int, tmpl models.UrlTemplate) {
	printSeparator()
	fmt.Printf("%s%sHOP %d: %s %s%s\n", colorBold, colorCyan, hop, tmpl.Method, tmpl.URL(), colorReset)
	printSeparator()
}

func printSeparator() {
	fmt.Printf("%s----------------------------------------------------%s\n", colorDim, colorReset)
}

func printAuthState(auth models.AuthState) {
	if auth.WWW.Scheme == models.AuthNone && auth.Proxy.Scheme == models.AuthNone {
		return
	}
	fmt.Printf("%sAuth:%s", colorDim, colorReset)
	if auth.WWW.Scheme != models.AuthNone {
		fmt.Printf(" www=%s(bids=%d)", authSchemeName(auth.WWW.Scheme), auth.WWW.Bids)
	}
	if auth.Proxy.Scheme != models.AuthNone {
		fmt.Printf(" proxy=%s(bids=%d)", authSchemeName(auth.Proxy.Scheme), auth.Proxy.Bids)
	}
	fmt.Println()
}

func authSchemeName(s models.AuthScheme) string {
	switch s {
	case models.AuthBasic:
		return "Basic"
	case models.AuthDigest:
		return "Digest"
	default:
		return "None"
	}
}

func printResponse(result models.TxResult) {
	statusColor := colorGreen
	if result.Status >= 500 {
		statusColor = colorRed
	} else if result.Status >= 400 {
		statusColor = colorYellow
	} else if result.Status >= 300 {
		statusColor = colorCyan
	}
	fmt.Printf("%sStatus:%s %s%d%s %s(time: %s, bytes: %d)%s\n",
		colorDim, colorReset,
		statusColor, result.Status, colorReset,
		colorDim, result.Elapsed.Round(time.Millisecond), result.Bytes, colorReset)

	if result.Location != "" {
		fmt.Printf("%sLocation:%s %s\n", colorDim, colorReset, result.Location)
	}

	if len(result.Headers) > 0 {
		var keys []string
		for k := range result.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("%sHeaders:%s\n", colorDim, colorReset)
		for _, k := range keys {
			for _, v := range result.Headers[k] {
				fmt.Printf("  %s%s:%s %s\n", colorYellow, k, colorReset, v)
			}
		}
	}
}

func printFailure(result models.TxResult) {
	fmt.Printf("%s%sRequest failed%s\n", colorBold, colorRed, colorReset)
	if result.Fail != nil {
		fmt.Printf("  %sKind:%s %s\n", colorDim, colorReset, result.Fail.Kind)
		if result.Fail.Err != nil {
			fmt.Printf("  %sError:%s %v\n", colorDim, colorReset, result.Fail.Err)
		}
	}
}
