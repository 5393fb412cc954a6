package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the calendar date format used on the command line, in file names
// and as batch keys.
const Layout = "2006-01-02"

// ErrInvalidRange is returned when a range starts after it ends.
var ErrInvalidRange = errors.New("invalid date range: start is after end")

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

// FormatDate formats a time as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Day truncates a timestamp to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar day.
func Today() time.Time {
	return Day(time.Now())
}

// WindowFor returns the inclusive window [target-lookbackDays, target].
func WindowFor(target time.Time, lookbackDays int) (start, end time.Time) {
	end = Day(target)
	start = end.AddDate(0, 0, -lookbackDays)
	return start, end
}

// DatesInRange enumerates every calendar day in [start, end], ascending.
func DatesInRange(start, end time.Time) ([]time.Time, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%s > %s: %w", FormatDate(start), FormatDate(end), ErrInvalidRange)
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// DateStrings returns the YYYY-MM-DD keys of the window ending at target.
func DateStrings(target time.Time, lookbackDays int) []string {
	start, end := WindowFor(target, lookbackDays)
	days, err := DatesInRange(start, end)
	if err != nil {
		return nil
	}
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = FormatDate(d)
	}
	return keys
}

// MakePeriodID creates a period id from start and end dates.
// If start == end, returns just the date (e.g., "2026-02-06").
// Otherwise returns a range (e.g., "2026-02-01..2026-02-06").
func MakePeriodID(start, end string) string {
	if start == end {
		return start
	}
	return start + ".." + end
}

// FormatPeriodDisplay formats a period id for human-readable display.
// Single day: "Feb 06, 2026"
// Range: "Feb 01 - Feb 06, 2026"
func FormatPeriodDisplay(periodID string) string {
	if strings.Contains(periodID, "..") {
		parts := strings.SplitN(periodID, "..", 2)
		start, err := time.Parse(Layout, parts[0])
		if err != nil {
			return periodID
		}
		end, err := time.Parse(Layout, parts[1])
		if err != nil {
			return periodID
		}
		return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
	}

	d, err := time.Parse(Layout, periodID)
	if err != nil {
		return periodID
	}
	return d.Format("Jan 02, 2006")
}
