package urlplan

import (
	"math/rand"
	"testing"

	"github.com/onslaught-http/onslaught/pkg/models"
)

func buildTestPlan(t *testing.T, paths ...string) *Plan {
	t.Helper()
	raw := &models.UrlPlan{}
	for i, p := range paths {
		tmpl, err := ParseURL("http://example.test"+p, models.MethodGET, nil, i)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", p, err)
		}
		raw.Templates = append(raw.Templates, tmpl)
	}
	return New(raw)
}

// Sequential mode walks a,b,a,b and calls onWrap only when the cursor
// passes the end of the plan.
func TestPlanNextSequentialOrder(t *testing.T) {
	p := buildTestPlan(t, "/a", "/b")
	rng := rand.New(rand.NewSource(1))

	var order []string
	var wraps int
	cursor := 0
	for i := 0; i < 4; i++ {
		tmpl, next := p.Next(rng, cursor, false, func() { wraps++ })
		order = append(order, tmpl.Path)
		cursor = next
	}

	want := []string{"/a", "/b", "/a", "/b"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order[%d] = %q, want %q (full order %v)", i, order[i], w, order)
		}
	}
	if wraps != 1 {
		t.Fatalf("wraps = %d, want 1 (cursor wraps once going from index 1 back to 0)", wraps)
	}
}

func TestPlanNextInternetModeNeverWraps(t *testing.T) {
	p := buildTestPlan(t, "/a", "/b", "/c")
	rng := rand.New(rand.NewSource(42))

	wraps := 0
	cursor := 0
	for i := 0; i < 50; i++ {
		_, next := p.Next(rng, cursor, true, func() { wraps++ })
		cursor = next
	}
	if wraps != 0 {
		t.Fatalf("internet mode must never invoke onWrap, got %d calls", wraps)
	}
}

func TestResolveRedirectRelativePath(t *testing.T) {
	cur := models.UrlTemplate{Protocol: models.ProtocolHTTPS, Host: "h", Port: 443, Path: "/x"}
	next, err := ResolveRedirect(cur, "/y?token=1", 7)
	if err != nil {
		t.Fatalf("ResolveRedirect: %v", err)
	}
	if next.Host != "h" || next.Protocol != models.ProtocolHTTPS || next.Port != 443 {
		t.Fatalf("relative redirect must inherit host/protocol/port, got %+v", next)
	}
	if next.Path != "/y" || next.Query != "token=1" {
		t.Fatalf("path/query not split correctly: %+v", next)
	}
}

func TestResolveRedirectAbsoluteURL(t *testing.T) {
	cur := models.UrlTemplate{Protocol: models.ProtocolHTTP, Host: "h", Port: 80, Path: "/x"}
	next, err := ResolveRedirect(cur, "http://other.test:8080/z", 7)
	if err != nil {
		t.Fatalf("ResolveRedirect: %v", err)
	}
	if next.Host != "other.test" || next.Port != 8080 || next.Path != "/z" {
		t.Fatalf("absolute redirect not parsed correctly: %+v", next)
	}
}

func TestParseURLUnsupportedScheme(t *testing.T) {
	tmpl, err := ParseURL("ftp://h/p", models.MethodGET, nil, 0)
	if err != nil {
		t.Fatalf("ParseURL should not error on an unknown scheme, got %v", err)
	}
	if tmpl.Protocol != models.ProtocolUnsupported {
		t.Fatalf("expected ProtocolUnsupported, got %v", tmpl.Protocol)
	}
}
