// Package engine is the transaction engine: it executes exactly one
// request and reads exactly one response on a Connection, walking the
// fixed pipeline of protocol gate, jitter, transport, TLS/tunnel, send,
// header and body read, and the final reuse decision.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/onslaught-http/onslaught/internal/cookiejar"
	"github.com/onslaught-http/onslaught/internal/httpwire"
	"github.com/onslaught-http/onslaught/internal/transport"
	"github.com/onslaught-http/onslaught/pkg/models"

	stdhttp "net/http"
)

// Engine owns the collaborators the per-transaction pipeline needs that
// live outside any one Connection: the optional forward proxy and the
// worker-keyed cookie store (every Jar call below is scoped to the calling
// worker's own id, never shared across workers).
type Engine struct {
	Proxy models.ProxyConfig
	Jar   *cookiejar.Jar
}

// New builds an Engine bound to the run-wide proxy configuration and the
// worker-keyed cookie store.
func New(proxy models.ProxyConfig, jar *cookiejar.Jar) *Engine {
	return &Engine{Proxy: proxy, Jar: jar}
}

// Execute runs one transaction against *connPtr, replacing it with a fresh
// Connection whenever the current one cannot be reused. A connection that
// hit its reuse cap is torn down and rebuilt with a fresh requests-served
// budget, not left permanently non-reusable.
func (e *Engine) Execute(connPtr **transport.Connection, cfg *models.RunConfig, tmpl models.UrlTemplate, workerID int, rng *rand.Rand, extraHeaders stdhttp.Header) models.TxResult {
	// 1. Protocol gate.
	if tmpl.Protocol == models.ProtocolUnsupported {
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrUnsupported}}
	}

	// 2. Jitter.
	if cfg.DelayMaxMS > 0 {
		d := time.Duration(rng.Intn(cfg.DelayMaxMS+1)) * time.Millisecond
		time.Sleep(d)
	}

	// 3. Start timer.
	start := time.Now()

	dialHost, dialPort := tmpl.Host, tmpl.Port
	if e.Proxy.Required {
		dialHost, dialPort = e.Proxy.Host, e.Proxy.Port
	}
	serverName := ""
	if tmpl.Protocol == models.ProtocolHTTPS {
		serverName = tmpl.Host
	}

	// 4. Transport.
	conn := *connPtr
	if conn == nil || conn.NeedsOpen() || !conn.Serves(dialHost, dialPort, serverName) {
		if conn != nil {
			conn.Close()
		}
		conn = transport.New(cfg.ConnMax, cfg.Keepalive, cfg.SocketTimeout)
		*connPtr = conn

		if err := conn.Open(dialHost, dialPort); err != nil {
			return models.TxResult{Fail: &models.TxError{Kind: timeoutKind(err, models.ErrConnectTimeout, models.ErrConnectRefused), Err: err}}
		}

		// 5. TLS & tunneling.
		if tmpl.Protocol == models.ProtocolHTTPS {
			if e.Proxy.Required {
				hostport := fmt.Sprintf("%s:%d", tmpl.Host, tmpl.Port)
				if _, err := conn.Write(httpwire.ConnectRequest(hostport)); err != nil {
					return models.TxResult{Fail: &models.TxError{Kind: models.ErrProxyTunnelFailed, Err: err}}
				}
				tunnelResp, err := httpwire.ReadConnectResponse(conn.Reader())
				if err != nil || tunnelResp.StatusCode < 200 || tunnelResp.StatusCode >= 300 {
					conn.FailAndClose()
					return models.TxResult{Fail: &models.TxError{Kind: models.ErrProxyTunnelFailed, Err: err}}
				}
			}
			if err := conn.HandshakeTLS(tmpl.Host, cfg.InsecureSkipVerify); err != nil {
				conn.FailAndClose()
				return models.TxResult{Fail: &models.TxError{Kind: models.ErrTLSFailed, Err: err}}
			}
		}
	}

	req, err := httpwire.BuildRequest(tmpl, extraHeaders, cfg.Keepalive)
	if err != nil {
		conn.FailAndClose()
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrWrite, Err: err}}
	}
	if e.Jar != nil {
		e.Jar.Apply(workerID, req.URL, req)
	}

	// 6. Send. A plain-HTTP request routed through the proxy goes out in
	// absolute-form; everything else (direct, or inside a CONNECT tunnel)
	// uses origin-form.
	var wire []byte
	if e.Proxy.Required && tmpl.Protocol == models.ProtocolHTTP {
		wire, err = httpwire.SerializeProxy(req)
	} else {
		wire, err = httpwire.Serialize(req)
	}
	if err != nil {
		conn.FailAndClose()
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrWrite, Err: err}}
	}
	if _, err := conn.Write(wire); err != nil {
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrWrite, Err: err}}
	}

	// 7. Receive headers.
	resp, err := httpwire.ReadHeaders(conn.Reader(), req)
	if err != nil {
		conn.FailAndClose()
		return models.TxResult{Fail: &models.TxError{Kind: timeoutKind(err, models.ErrIOTimeout, models.ErrHeadersInvalid), Err: err}}
	}
	if e.Jar != nil {
		e.Jar.Ingest(workerID, req.URL, resp)
	}

	// 8. Receive body.
	bytesRead, err := httpwire.ReadBody(resp)
	if err != nil {
		conn.FailAndClose()
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrIOTimeout, Err: err}}
	}
	if !cfg.ZeroOK && bytesRead == 0 {
		conn.FailAndClose()
		return models.TxResult{Fail: &models.TxError{Kind: models.ErrZeroBody}}
	}

	// 9. Stop timer.
	elapsed := time.Since(start)

	// 10. Reuse decision.
	conn.MarkServed()
	wantsReuse := cfg.Keepalive && !resp.Close && conn.RequestsServed < cfg.ConnMax
	if !wantsReuse {
		conn.EndReuse()
	}

	return models.TxResult{
		OK:       true,
		Status:   resp.StatusCode,
		Bytes:    bytesRead,
		Elapsed:  elapsed,
		Headers:  map[string][]string(resp.Header),
		Location: resp.Header.Get("Location"),
	}
}

// timeoutKind distinguishes a deadline expiry from any other I/O error so
// timeouts are reported as their own kind.
func timeoutKind(err error, onTimeout, otherwise models.TxErrorKind) models.TxErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return onTimeout
	}
	return otherwise
}
