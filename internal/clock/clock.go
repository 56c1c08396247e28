// Package clock supplies UTC timestamps in the fixed-width format used by
// every persisted record, so timestamps compare correctly as strings.
package clock

import "time"

// Layout is the persisted timestamp format: UTC, microsecond precision,
// fixed width.
const Layout = "2006-01-02T15:04:05.000000Z"

// DateLayout is the day stamp used in submission IDs.
const DateLayout = "20060102"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Format renders t in Layout after converting to UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a Layout timestamp.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Stamp returns Format(c.Now()).
func Stamp(c Clock) string {
	return Format(c.Now())
}
