package domain

import (
	"errors"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	DateLayout,
}

var errEmptyTimestamp = errors.New("empty timestamp")

// ParseTimestamp parses the ISO-8601 variants collectors emit. Values without
// a zone are taken as UTC. The result is always UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// PayloadTime reads key from payload and parses it as a timestamp.
func PayloadTime(payload map[string]any, key string) (time.Time, bool) {
	v, ok := payload[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
