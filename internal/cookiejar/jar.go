// Package cookiejar is the worker-keyed cookie store. Every operation is
// scoped to one worker's own cookie namespace, so two workers hitting the
// same host never observe each other's Set-Cookie state, and expiring
// cookies on a plan wrap discards only the wrapping worker's jar.
package cookiejar

import (
	"net/http"
	"net/url"
	"sync"

	stdjar "net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// Jar is a registry of one stdlib cookiejar per worker id, each configured
// with the public-suffix list so per-domain cookie scoping matches real
// browser behavior.
type Jar struct {
	mu   sync.Mutex
	jars map[int]*stdjar.Jar
}

// New builds an empty, worker-keyed Jar.
func New() (*Jar, error) {
	return &Jar{jars: make(map[int]*stdjar.Jar)}, nil
}

// jarFor returns workerID's jar, creating it on first use.
func (j *Jar) jarFor(workerID int) (*stdjar.Jar, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jr, ok := j.jars[workerID]; ok {
		return jr, nil
	}
	jr, err := stdjar.New(&stdjar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	j.jars[workerID] = jr
	return jr, nil
}

// Ingest stores any Set-Cookie headers from resp against u, scoped to
// workerID's own jar.
func (j *Jar) Ingest(workerID int, u *url.URL, resp *http.Response) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	jr, err := j.jarFor(workerID)
	if err != nil {
		return
	}
	jr.SetCookies(u, cookies)
}

// Apply attaches any cookies workerID has stored for u onto req.
func (j *Jar) Apply(workerID int, u *url.URL, req *http.Request) {
	jr, err := j.jarFor(workerID)
	if err != nil {
		return
	}
	for _, c := range jr.Cookies(u) {
		req.AddCookie(c)
	}
}

// Reset discards workerID's stored cookies only, the operation a worker
// runs on its own plan wrap when RunConfig.ExpireCookiesOnWrap is set; it
// never touches any other worker's cookie state.
func (j *Jar) Reset(workerID int) error {
	fresh, err := stdjar.New(&stdjar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.jars[workerID] = fresh
	j.mu.Unlock()
	return nil
}
