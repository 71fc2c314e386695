package types

import (
	"time"
)

// DateLayout is the wire form of a business date.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date in t's location.
// All business dates in the ledger are values returned by Day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current business date.
func Today() time.Time {
	return Day(time.Now())
}

// ParseDay parses "2006-01-02" into a business date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// FormatDay renders a business date.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// InRange reports whether day lies in [from, to]. A zero bound is open.
func InRange(day, from, to time.Time) bool {
	if !from.IsZero() && day.Before(from) {
		return false
	}
	if !to.IsZero() && day.After(to) {
		return false
	}
	return true
}
