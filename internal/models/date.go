package models

import (
	"fmt"
	"time"
)

// DateLayout is the ISO 8601 calendar date layout used on every external surface.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a civil date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Civil drops the clock part of t, keeping the calendar day as seen in t's own location.
// The result is always UTC midnight so dates compare with ==.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Civil(b).Sub(Civil(a)).Hours() / 24)
}
