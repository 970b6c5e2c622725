package urlplan

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// ParseURL turns a raw URL string plus an explicit method/body into a
// UrlTemplate. Schemes other than http/https produce ProtocolUnsupported
// rather than an error: the protocol gate is a runtime classification, not
// a load-time rejection.
func ParseURL(raw string, method models.Method, body []byte, urlid int) (models.UrlTemplate, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return models.UrlTemplate{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}

	tmpl := models.UrlTemplate{
		URLID:  urlid,
		Host:   u.Hostname(),
		Path:   u.Path,
		Query:  u.RawQuery,
		Method: method,
		Body:   body,
	}
	if tmpl.Path == "" {
		tmpl.Path = "/"
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		tmpl.Protocol = models.ProtocolHTTP
		tmpl.Port = 80
	case "https":
		tmpl.Protocol = models.ProtocolHTTPS
		tmpl.Port = 443
	default:
		tmpl.Protocol = models.ProtocolUnsupported
	}

	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return models.UrlTemplate{}, fmt.Errorf("invalid port in %q: %w", raw, err)
		}
		tmpl.Port = n
	}

	if tmpl.Method == "" {
		tmpl.Method = models.MethodGET
	}
	if tmpl.Method != models.MethodGET && tmpl.Method != models.MethodPOST {
		return models.UrlTemplate{}, fmt.Errorf("unsupported method %q for %q: only GET and POST are supported", method, raw)
	}

	return tmpl, nil
}

// ResolveRedirect builds the next UrlTemplate for a 301/302 Location
// header. If loc has no protocol scheme, host/port/protocol are inherited
// from cur and only the path/query are replaced.
func ResolveRedirect(cur models.UrlTemplate, loc string, urlid int) (models.UrlTemplate, error) {
	if !strings.Contains(loc, "://") {
		next := cur
		if i := strings.IndexByte(loc, '?'); i >= 0 {
			next.Path = loc[:i]
			next.Query = loc[i+1:]
		} else {
			next.Path = loc
			next.Query = ""
		}
		if next.Path == "" {
			next.Path = "/"
		}
		return next, nil
	}
	return ParseURL(loc, models.MethodGET, nil, urlid)
}
