package am

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/lpharvest/errors"
)

var relativeRange = regexp.MustCompile(`(?i)^last\s+(\d+)\s+(minute|hour|day|week)s?$`)

var rangeUnits = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// ParseRelativeRange resolves expressions like "Last 1 hour" or
// "last 15 minutes" to a window ending at now.
func ParseRelativeRange(expr string, now time.Time) (start, end time.Time, err error) {
	m := relativeRange.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return time.Time{}, time.Time{}, errors.WithHint(
			errors.Newf("unrecognised time range %q", expr),
			`use "Last N minutes|hours|days|weeks", or set search.start and search.end`)
	}

	unit := rangeUnits[strings.ToLower(m[2])]
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n > math.MaxInt64/int64(unit) {
		return time.Time{}, time.Time{}, errors.WithHint(
			errors.Newf("time range %q is too long", expr),
			"use a shorter range, or set search.start and search.end")
	}
	if n < 1 {
		return time.Time{}, time.Time{}, errors.Newf("time range %q must cover at least one %s", expr, strings.ToLower(m[2]))
	}

	return now.Add(-time.Duration(n) * unit), now, nil
}

// Range resolves the search window. Explicit start and end win over
// time_range and must be given together.
func (c SearchConfig) Range(now time.Time) (start, end time.Time, err error) {
	if c.Start == "" && c.End == "" {
		return ParseRelativeRange(c.TimeRange, now)
	}
	if c.Start == "" || c.End == "" {
		return time.Time{}, time.Time{}, errors.New("search.start and search.end must be set together")
	}

	if start, err = time.Parse(time.RFC3339, c.Start); err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "search.start")
	}
	if end, err = time.Parse(time.RFC3339, c.End); err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "search.end")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.Newf("search.end %s is before search.start %s", c.End, c.Start)
	}
	return start, end, nil
}
