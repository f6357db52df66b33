package models

import "time"

// DateLayout is the wire format for dates.
const DateLayout = "2006-01-02"

// MinuteLayout is the wire format for order times (minute resolution).
const MinuteLayout = "2006-01-02 15:04:05"

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// ParseMinute parses a minute-resolution datetime, accepting either the
// space-separated or the ISO-8601 "T" form.
func ParseMinute(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(MinuteLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
}
