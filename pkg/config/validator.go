package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error with context and a
// suggestion for fixing it.
type ValidationError struct {
	Field      string // Field path (e.g., "proxy.host")
	Value      string // The actual value provided (if any)
	Message    string // Error description
	Expected   string // Expected format/type
	Hint       string // Helpful suggestion
	DidYouMean string // Typo correction suggestion
}

// ValidationResult holds all validation errors accumulated for one RunConfig.
type ValidationResult struct {
	Errors []ValidationError
}

// Add adds a new validation error.
func (v *ValidationResult) Add(err ValidationError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors.
func (v *ValidationResult) HasErrors() bool {
	return len(v.Errors) > 0
}

// FormatErrors formats all errors into a user-friendly string.
func (v *ValidationResult) FormatErrors() string {
	if !v.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nConfiguration Errors:\n")

	for i, err := range v.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %s\n", i+1, err.Field))

		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     |- Value: %q\n", truncate(err.Value, 50)))
		}

		sb.WriteString(fmt.Sprintf("     |- Error: %s\n", err.Message))

		if err.Expected != "" {
			sb.WriteString(fmt.Sprintf("     |- Expected: %s\n", err.Expected))
		}

		if err.DidYouMean != "" {
			sb.WriteString(fmt.Sprintf("     |- Did you mean: %q?\n", err.DidYouMean))
		}

		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     `- Hint: %s\n", err.Hint))
		}
	}

	return sb.String()
}

// Hints for common RunConfig fields.
var fieldHints = map[string]string{
	"concurrency":    "Number of concurrent workers as a positive integer (e.g., 10)",
	"reps":           "Repetitions per worker, or omit and set deadline_secs for a wall-clock-bounded run",
	"deadline_secs":  "Wall-clock run length in seconds (e.g., 60)",
	"connection_max": "Requests served per connection before forced close; 1 disables reuse",
	"auth_bids":      "Maximum authentication rebids per URL per worker (e.g., 3)",
	"delay_max_ms":   "Upper bound, in milliseconds, of the per-request jitter sleep",
	"urls":           "At least one URL template is required to build a plan",
}

// GetHint returns a helpful hint for a field.
func GetHint(field string) string {
	return fieldHints[field]
}

// validConfigFields is every YAML key yamlConfig actually understands,
// flattened across its nested run/report/proxy/login/urls sections, used to
// power did-you-mean suggestions for a typo'd key.
var validConfigFields = []string{
	"run", "report", "proxy", "login", "urls",
	"concurrency", "reps", "deadline_secs", "internet_mode", "keepalive",
	"connection_max", "delay_max_ms", "follow_redirects", "auth_bids",
	"expire_cookies_on_wrap", "failure_budget", "stop_if", "min_samples",
	"socket_timeout",
	"verbose", "csv", "timestamp", "mark", "fullurl", "zero_ok",
	"host", "port",
	"url", "method", "body",
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = minInt(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest matching field name from validOptions,
// or "" if nothing is close enough to be a plausible typo correction.
func FindClosestMatch(input string, validOptions []string) string {
	if input == "" {
		return ""
	}

	bestMatch := ""
	bestDistance := 100
	for _, option := range validOptions {
		distance := levenshteinDistance(input, option)
		if distance < bestDistance && distance <= len(option)/2+1 {
			bestDistance = distance
			bestMatch = option
		}
	}

	if strings.EqualFold(input, bestMatch) {
		return ""
	}
	return bestMatch
}

// SuggestField returns a did-you-mean suggestion for an unrecognized YAML
// config key, against the field names yamlConfig actually binds.
func SuggestField(unknown string) string {
	return FindClosestMatch(unknown, validConfigFields)
}

func minInt(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
