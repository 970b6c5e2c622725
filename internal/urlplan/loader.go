package urlplan

import (
	"fmt"
	"os"
	"strings"

	"github.com/onslaught-http/onslaught/pkg/models"
	"gopkg.in/yaml.v3"
)

// yamlEntry is one line of a YAML URL-list file.
type yamlEntry struct {
	URL    string `yaml:"url"`
	Method string `yaml:"method,omitempty"`
	Body   string `yaml:"body,omitempty"`
}

// yamlFile is the on-disk shape of a URL-list file: a plain ordered list of
// request templates, plus an optional one-time login request.
type yamlFile struct {
	Login *yamlEntry  `yaml:"login,omitempty"`
	URLs  []yamlEntry `yaml:"urls"`
}

// LoadFile reads a YAML URL-list file into a models.UrlPlan.
func LoadFile(path string) (*models.UrlPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read url list %q: %w", path, err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse url list %q: %w", path, err)
	}
	if len(f.URLs) == 0 {
		return nil, fmt.Errorf("url list %q contains no urls", path)
	}

	plan := &models.UrlPlan{}
	for i, e := range f.URLs {
		tmpl, err := ParseURL(e.URL, models.Method(e.Method), []byte(e.Body), i)
		if err != nil {
			return nil, fmt.Errorf("url list %q entry %d: %w", path, i, err)
		}
		plan.Templates = append(plan.Templates, tmpl)
	}

	if f.Login != nil {
		login, err := ParseURL(f.Login.URL, models.Method(f.Login.Method), []byte(f.Login.Body), -1)
		if err != nil {
			return nil, fmt.Errorf("url list %q login entry: %w", path, err)
		}
		plan.Login = &login
	}

	return plan, nil
}

// FromURLs builds a UrlPlan directly from a slice of raw URL strings, all
// sharing one method and no body — the common case of a `-url` flag
// invocation. Each raw URL is trimmed before parsing, so a comma-separated
// `-url` flag value need not be hand-trimmed by its caller.
func FromURLs(raws []string, method models.Method) (*models.UrlPlan, error) {
	plan := &models.UrlPlan{}
	for i, raw := range raws {
		tmpl, err := ParseURL(strings.TrimSpace(raw), method, nil, i)
		if err != nil {
			return nil, err
		}
		plan.Templates = append(plan.Templates, tmpl)
	}
	return plan, nil
}
