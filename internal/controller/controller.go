// Package controller drives redirect and 401/407 rebid follow-up on top of
// one transaction-engine execution per hop, updates worker statistics, and
// reports a single hit/failure verdict to the Worker.
package controller

import (
	"math/rand"
	"net/http"

	"github.com/onslaught-http/onslaught/internal/auth"
	"github.com/onslaught-http/onslaught/internal/engine"
	"github.com/onslaught-http/onslaught/internal/runstate"
	"github.com/onslaught-http/onslaught/internal/transport"
	"github.com/onslaught-http/onslaught/internal/urlplan"
	"github.com/onslaught-http/onslaught/pkg/models"
)

// maxRedirectDepth caps how far a redirect chain is followed before the
// request is failed as a redirect loop.
const maxRedirectDepth = 10

// TxHook observes each individual hop (original request, each redirect,
// each auth rebid) as it completes; the verbose per-transaction line and
// CSV writer consume these.
type TxHook func(workerID int, tmpl models.UrlTemplate, result models.TxResult)

// Controller wires one Transaction Engine to the clock it reports into.
type Controller struct {
	Engine *engine.Engine
	Clock  *runstate.Clock
}

// New builds a Controller.
func New(eng *engine.Engine, clock *runstate.Clock) *Controller {
	return &Controller{Engine: eng, Clock: clock}
}

// Run drives one outer URL request to its terminal outcome: it may hop
// through redirects and auth rebids on the same connection before
// returning. true means a hit; false means a terminal failure the Worker
// must record.
func (c *Controller) Run(connPtr **transport.Connection, tmpl models.UrlTemplate, ws *models.WorkerState, cfg *models.RunConfig, hook TxHook) bool {
	current := tmpl
	depth := 0

	for {
		headers := c.buildHeaders(current, ws)
		result := c.Engine.Execute(connPtr, cfg, current, ws.ID, ws.Rand, headers)

		ws.Stats.Bytes += result.Bytes
		ws.Stats.Time += result.Elapsed.Seconds()
		if result.Status == 200 {
			ws.Stats.OK200++
		}
		c.Clock.Observe(result.Elapsed)
		if hook != nil {
			hook(ws.ID, current, result)
		}

		if !result.OK {
			ws.Stats.CodeFail++
			return false
		}

		switch {
		case result.Status >= 200 && result.Status < 300:
			ws.Stats.CodeOK++
			return true

		case result.Status >= 300 && result.Status < 400:
			ws.Stats.CodeOK++
			if !cfg.FollowRedirects || result.Location == "" {
				return true
			}
			depth++
			if depth > maxRedirectDepth {
				c.reportTerminal(ws, current, hook, models.ErrRedirectDepth)
				return false
			}
			next, err := urlplan.ResolveRedirect(current, result.Location, current.URLID)
			if err != nil {
				return false
			}
			current = next

		case result.Status == http.StatusUnauthorized || result.Status == http.StatusProxyAuthRequired:
			ws.Stats.CodeOK++
			realm := &ws.Auth.WWW
			headerName := "Www-Authenticate"
			if result.Status == http.StatusProxyAuthRequired {
				realm = &ws.Auth.Proxy
				headerName = "Proxy-Authenticate"
			}
			if realm.Bids >= cfg.AuthBids-1 {
				c.reportTerminal(ws, current, hook, models.ErrAuthExhausted)
				return false
			}
			challengeHeader := firstHeader(result.Headers, headerName)
			if challengeHeader == "" {
				return false
			}
			scheme, challenge := auth.ParseChallenge(challengeHeader)
			if scheme == models.AuthNone {
				return false
			}
			realm.Scheme = scheme
			realm.Challenge = challenge
			if realm.Creds.Username == "" {
				realm.Creds.Username = cfg.AuthUsername
				realm.Creds.Password = cfg.AuthPassword
			}
			realm.Bids++

		case result.Status >= 500:
			ws.Stats.CodeFail++
			return false

		default: // other 4xx
			ws.Stats.CodeFail++
			return false
		}
	}
}

// buildHeaders constructs the Authorization/Proxy-Authorization headers
// this hop should carry, based on the worker's cached auth bookkeeping.
// Cookies are applied by the Engine itself against its own jar.
func (c *Controller) buildHeaders(tmpl models.UrlTemplate, ws *models.WorkerState) http.Header {
	headers := http.Header{}

	if ws.Auth.WWW.Scheme != models.AuthNone && ws.Auth.WWW.Creds.Username != "" {
		if v, err := authHeaderValue(tmpl, ws.Auth.WWW.Scheme, ws.Auth.WWW.Challenge, &ws.Auth.WWW.Creds, ws.Rand); err == nil {
			headers.Set("Authorization", v)
		}
	}
	if ws.Auth.Proxy.Scheme != models.AuthNone && ws.Auth.Proxy.Creds.Username != "" {
		if v, err := authHeaderValue(tmpl, ws.Auth.Proxy.Scheme, ws.Auth.Proxy.Challenge, &ws.Auth.Proxy.Creds, ws.Rand); err == nil {
			headers.Set("Proxy-Authorization", v)
		}
	}
	return headers
}

func authHeaderValue(tmpl models.UrlTemplate, scheme models.AuthScheme, challenge models.DigestChallenge, creds *models.AuthCredentials, rng *rand.Rand) (string, error) {
	if scheme == models.AuthDigest {
		uri := tmpl.Path
		if tmpl.Query != "" {
			uri += "?" + tmpl.Query
		}
		return auth.SetDigest(string(tmpl.Method), uri, challenge, creds, rng)
	}
	return auth.SetBasic(*creds), nil
}

// reportTerminal surfaces a cap hit by Run itself (not an Engine execution)
// to hook as a synthetic terminal result, so the redirect-depth and
// auth-bid-exhaustion ceilings are reported with their own TxErrorKind
// instead of looking like an ordinary engine failure.
func (c *Controller) reportTerminal(ws *models.WorkerState, tmpl models.UrlTemplate, hook TxHook, kind models.TxErrorKind) {
	ws.Stats.CodeFail++
	if hook != nil {
		hook(ws.ID, tmpl, models.TxResult{Fail: &models.TxError{Kind: kind}})
	}
}

func firstHeader(h map[string][]string, key string) string {
	if h == nil {
		return ""
	}
	if vs, ok := h[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	// http.Header keys are canonicalized; map[string][]string loses that
	// unless the caller preserved canonical form, so fall back to a scan.
	for k, vs := range h {
		if len(vs) > 0 && http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(key) {
			return vs[0]
		}
	}
	return ""
}
