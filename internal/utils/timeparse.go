package utils

import (
	"errors"
	"strings"
	"time"
)

// ErrBadTime is returned when a date string matches none of the accepted
// layouts.
var ErrBadTime = errors.New("invalid date")

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339, ISO local date-times as sent by HTML
// datetime-local inputs, and plain dates. Values without an offset are
// read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrBadTime
}
