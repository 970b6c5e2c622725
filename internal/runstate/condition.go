package runstate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// condition is an optional, additional way to trip BudgetExceeded beyond
// the plain failure count: a run-wide error-rate threshold over the shared
// attempt tally.
type condition struct {
	operator    string
	threshold   float64
	isPercent   bool
	minSamples  int64
	tripped     int32
}

// conditionPattern matches expressions like "errors > 10%" or "errors > 0.1".
var conditionPattern = regexp.MustCompile(`(?i)errors?\s*([><=]+)\s*([\d.]+)(%)?`)

func parseCondition(expr string, minSamples int64) (*condition, error) {
	expr = strings.TrimSpace(expr)
	matches := conditionPattern.FindStringSubmatch(expr)
	if matches == nil {
		return nil, fmt.Errorf("invalid stop_if condition %q: expected format 'errors > 10%%'", expr)
	}

	threshold, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stop_if threshold %q: %w", matches[2], err)
	}

	if minSamples <= 0 {
		minSamples = 100 // cold-start protection
	}

	return &condition{
		operator:   matches[1],
		threshold:  threshold,
		isPercent:  matches[3] == "%",
		minSamples: minSamples,
	}, nil
}

// trips evaluates the condition against the current failed/attempts tally.
func (c *condition) trips(failed, attempts int64) bool {
	if atomic.LoadInt32(&c.tripped) == 1 {
		return true
	}
	if attempts == 0 {
		return false
	}

	rate := float64(failed) / float64(attempts)
	value := rate
	if c.isPercent {
		value = rate * 100
	}

	var shouldTrip bool
	switch c.operator {
	case ">":
		shouldTrip = value > c.threshold
	case ">=":
		shouldTrip = value >= c.threshold
	case "<":
		shouldTrip = value < c.threshold
	case "<=":
		shouldTrip = value <= c.threshold
	}

	if shouldTrip {
		atomic.StoreInt32(&c.tripped, 1)
	}
	return shouldTrip
}
