// Package timeutil holds calendar-date and timestamp helpers
// shared by the store, the analytics engine and the API.
package timeutil

import (
	"time"
)

const (
	// DateLayout is the calendar date format used for ranges.
	DateLayout = "2006-01-02"

	// StoreLayout is the fixed-width UTC format timestamps are
	// stored in, so lexical order matches chronological order.
	StoreLayout = "2006-01-02T15:04:05.000Z"
)

// Format returns t as a StoreLayout string in UTC, or "" for
// the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(StoreLayout)
}

// Ptr returns a pointer to the formatted timestamp, or nil for
// the zero time.
func Ptr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Format(t)
	return &s
}

// Parse reads a stored or RFC3339 timestamp. Timestamps without
// a zone designator are treated as UTC.
func Parse(ts string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Location loads an IANA timezone, falling back to UTC for an
// empty or unknown name.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns local midnight of date in loc.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayCount returns the number of calendar days in [from, to],
// or 0 if to precedes from.
func DayCount(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int((to.Unix()-from.Unix())/86400) + 1
}

// Days lists each calendar date in [from, to] as YYYY-MM-DD.
func Days(from, to time.Time) []string {
	n := DayCount(from, to)
	out := make([]string, 0, n)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

// PreviousPeriod returns the window of equal day-count width
// that ends the day before from. Widths are counted in days,
// so a 31-day month compares against the 31 days before it.
func PreviousPeriod(from, to time.Time) (time.Time, time.Time) {
	n := DayCount(from, to)
	if n == 0 {
		n = 1
	}
	prevTo := from.AddDate(0, 0, -1)
	prevFrom := prevTo.AddDate(0, 0, -(n - 1))
	return prevFrom, prevTo
}
