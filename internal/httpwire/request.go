// Package httpwire is the header codec and request serializer: it turns a
// UrlTemplate into wire bytes and parses wire bytes back into
// headers/status, backed by net/http's wire-format helpers instead of
// hand-rolled parsing.
package httpwire

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// BuildRequest constructs the *http.Request for one UrlTemplate. The URL
// carries scheme and host so the same request can be serialized in either
// origin-form or, for a forward proxy, absolute-form.
func BuildRequest(tmpl models.UrlTemplate, extraHeaders http.Header, keepalive bool) (*http.Request, error) {
	var body *bytes.Reader
	if tmpl.Method == models.MethodPOST {
		body = bytes.NewReader(tmpl.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(string(tmpl.Method), tmpl.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "onslaught/1.0")
	if tmpl.Method == models.MethodPOST {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if keepalive {
		req.Header.Set("Connection", "keep-alive")
	} else {
		req.Header.Set("Connection", "close")
	}
	for k, vs := range extraHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Serialize renders req in origin-form wire format, the bytes the
// Connection writes when talking to the origin directly (or through an
// already-established CONNECT tunnel).
func Serialize(req *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		return nil, fmt.Errorf("serializing request: %w", err)
	}
	return buf.Bytes(), nil
}

// SerializeProxy renders req in absolute-form, the request line a forward
// proxy expects for a plain-HTTP request that is not tunneled.
func SerializeProxy(req *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := req.WriteProxy(&buf); err != nil {
		return nil, fmt.Errorf("serializing proxied request: %w", err)
	}
	return buf.Bytes(), nil
}

// ConnectRequest renders a proxy CONNECT request line for an HTTPS tunnel.
func ConnectRequest(hostport string) []byte {
	return []byte(fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", hostport, hostport))
}

// ReadConnectResponse parses the proxy's response to a CONNECT request.
// Only the status line's class matters to the caller.
func ReadConnectResponse(r *bufio.Reader) (*http.Response, error) {
	req := &http.Request{Method: "CONNECT"}
	return http.ReadResponse(r, req)
}
