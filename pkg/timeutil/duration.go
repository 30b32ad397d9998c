// Package timeutil parses the report windows accepted on the command line.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultWindow is used when no window is given.
const DefaultWindow = "1w"

const (
	day  = 24 * time.Hour
	week = 7 * day

	dateLayout = "2006-01-02"
)

var segment = regexp.MustCompile(`^\s*(\d+)\s*([a-z]+)`)

// units maps every accepted spelling to its duration.
var units = func() map[string]time.Duration {
	m := map[string]time.Duration{}
	for d, names := range map[time.Duration][]string{
		time.Second: {"s", "sec", "secs", "second", "seconds"},
		time.Minute: {"m", "min", "mins", "minute", "minutes"},
		time.Hour:   {"h", "hr", "hrs", "hour", "hours"},
		day:         {"d", "day", "days"},
		week:        {"w", "wk", "wks", "week", "weeks"},
	} {
		for _, n := range names {
			m[n] = d
		}
	}
	return m
}()

// ParseWindow parses windows such as "3d", "1w" or "1w2d6h" and returns the
// duration with its compact label. Empty input means DefaultWindow.
func ParseWindow(input string) (time.Duration, string, error) {
	rest := strings.ToLower(strings.TrimSpace(input))
	if rest == "" {
		rest = DefaultWindow
	}

	var total time.Duration
	for rest != "" {
		m := segment.FindStringSubmatch(rest)
		if m == nil {
			return 0, "", fmt.Errorf("invalid duration segment %q", strings.TrimSpace(rest))
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid duration value %q: %w", m[1], err)
		}
		unit, ok := units[m[2]]
		if !ok {
			return 0, "", fmt.Errorf("unsupported duration unit %q", m[2])
		}
		total += time.Duration(n) * unit
		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	if total <= 0 {
		return 0, "", fmt.Errorf("duration must be greater than zero")
	}
	return total, FormatWindow(total), nil
}

// FormatWindow renders d with w, d, h, m and s tokens.
func FormatWindow(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	var b strings.Builder
	for _, u := range []struct {
		label string
		size  time.Duration
	}{{"w", week}, {"d", day}, {"h", time.Hour}, {"m", time.Minute}, {"s", time.Second}} {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.label)
			d -= n * u.size
		}
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}

// Range resolves a report range relative to now. It accepts a window
// ("3d"), "today", a start date ("2025-05-01") or an inclusive date span
// ("2025-05-01..2025-05-07"). Dates are read in now's location.
func Range(spec string, now time.Time) (since, until time.Time, label string, err error) {
	spec = strings.TrimSpace(spec)
	loc := now.Location()
	startOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	switch {
	case strings.EqualFold(spec, "today"):
		return startOfDay(now), now, "today", nil
	case strings.Contains(spec, ".."):
		from, to, _ := strings.Cut(spec, "..")
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(from), loc)
		if err != nil {
			return since, until, "", fmt.Errorf("invalid start date %q", from)
		}
		end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(to), loc)
		if err != nil {
			return since, until, "", fmt.Errorf("invalid end date %q", to)
		}
		return start, end.Add(day - time.Nanosecond), spec, nil
	}

	if start, perr := time.ParseInLocation(dateLayout, spec, loc); perr == nil {
		return start, now, "since " + spec, nil
	}
	d, label, err := ParseWindow(spec)
	if err != nil {
		return since, until, "", err
	}
	return now.Add(-d), now, "last " + label, nil
}
