// Package auth implements the Basic and Digest challenge-response
// primitives the controller bids on 401/407 challenges.
package auth

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// ParseChallenge reads a WWW-Authenticate/Proxy-Authenticate header value
// and returns the scheme plus, for Digest, the challenge parameters.
func ParseChallenge(header string) (models.AuthScheme, models.DigestChallenge) {
	header = strings.TrimSpace(header)
	lower := strings.ToLower(header)

	switch {
	case strings.HasPrefix(lower, "digest"):
		return models.AuthDigest, parseDigestParams(header[len("Digest"):])
	case strings.HasPrefix(lower, "basic"):
		return models.AuthBasic, models.DigestChallenge{Realm: parseDigestParams(header[len("Basic"):]).Realm}
	default:
		return models.AuthNone, models.DigestChallenge{}
	}
}

// parseDigestParams parses a comma-separated key=value, key="value" list.
func parseDigestParams(s string) models.DigestChallenge {
	var c models.DigestChallenge
	for _, part := range splitParams(s) {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "realm":
			c.Realm = val
		case "nonce":
			c.Nonce = val
		case "opaque":
			c.Opaque = val
		case "qop":
			c.QOP = val
		case "algorithm":
			c.Algorithm = val
		}
	}
	return c
}

func splitParams(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			depth = 1 - depth
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// SetBasic returns the Authorization header value for cached Basic
// credentials.
func SetBasic(creds models.AuthCredentials) string {
	raw := creds.Username + ":" + creds.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// SetDigest computes an RFC 2617 Digest Authorization header value,
// including qop=auth with a client nonce and a nonce count that advances
// across rebids to the same realm. The client nonce is drawn from rng, the
// worker's own private RNG, so a run stays reproducible from its seed.
func SetDigest(method, uri string, challenge models.DigestChallenge, creds *models.AuthCredentials, rng *rand.Rand) (string, error) {
	if challenge.Nonce == "" {
		return "", fmt.Errorf("digest challenge has no nonce")
	}

	creds.NC++
	nc := fmt.Sprintf("%08x", creds.NC)
	cnonce := randomHex(rng, 8)

	ha1 := md5hex(creds.Username + ":" + challenge.Realm + ":" + creds.Password)
	ha2 := md5hex(method + ":" + uri)

	var response string
	qop := pickQOP(challenge.QOP)
	if qop != "" {
		response = md5hex(strings.Join([]string{ha1, challenge.Nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		response = md5hex(strings.Join([]string{ha1, challenge.Nonce, ha2}, ":"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		creds.Username, challenge.Realm, challenge.Nonce, uri, response)
	if challenge.Opaque != "" {
		fmt.Fprintf(&sb, `, opaque="%s"`, challenge.Opaque)
	}
	if qop != "" {
		fmt.Fprintf(&sb, `, qop=%s, nc=%s, cnonce="%s"`, qop, nc, cnonce)
	}
	return sb.String(), nil
}

// pickQOP chooses "auth" when the server offers it among a comma-separated
// qop-options list; an empty result means qop is unsupported by the server.
func pickQOP(offered string) string {
	for _, opt := range strings.Split(offered, ",") {
		if strings.TrimSpace(opt) == "auth" {
			return "auth"
		}
	}
	return ""
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	rng.Read(b)
	return hex.EncodeToString(b)
}
