package domain

import (
	"fmt"
	"strings"
	"time"
)

// Known source tags. Each one has exactly one parser in the transform
// dispatcher and at most one collector kind.
const (
	SourceGit      = "git"
	SourceShell    = "shell"
	SourceBrowser  = "browser"
	SourceSession  = "session"
	SourceCalendar = "calendar"
)

// KnownSources lists the source tags in display order.
var KnownSources = []string{SourceGit, SourceShell, SourceBrowser, SourceSession, SourceCalendar}

// IsKnownSource reports whether s is one of KnownSources.
func IsKnownSource(s string) bool {
	for _, k := range KnownSources {
		if k == s {
			return true
		}
	}
	return false
}

// RawEvent is one record exactly as a collector reported it.
type RawEvent struct {
	ID          int64          `json:"id,omitempty"`
	Source      string         `json:"source"`
	CollectedAt time.Time      `json:"collected_at"`
	EventTime   *time.Time     `json:"event_timestamp,omitempty"`
	Payload     map[string]any `json:"raw_data"`
	Hash        string         `json:"content_hash"`
}

// NewRawEvent builds a RawEvent and computes its content hash.
func NewRawEvent(source string, collectedAt time.Time, eventTime *time.Time, payload map[string]any) RawEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	var et *time.Time
	if eventTime != nil {
		t := eventTime.UTC()
		et = &t
	}
	return RawEvent{
		Source:      source,
		CollectedAt: collectedAt.UTC(),
		EventTime:   et,
		Payload:     payload,
		Hash:        RawHash(source, payload),
	}
}

// TimelineEvent is a normalized, categorized activity entry.
type TimelineEvent struct {
	ID          int64          `json:"id,omitempty"`
	RawEventID  *int64         `json:"raw_event_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Source      string         `json:"source"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Project     string         `json:"project,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Hash        string         `json:"content_hash"`
}

// Seal normalizes times to UTC and computes the content hash.
func (e *TimelineEvent) Seal() {
	e.Timestamp = e.Timestamp.UTC()
	if e.EndTime != nil {
		t := e.EndTime.UTC()
		e.EndTime = &t
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Hash = EventHash(e.Timestamp, e.Source, e.Description)
}

// PeriodType is the granularity of a Summary.
type PeriodType string

const (
	PeriodDay     PeriodType = "day"
	PeriodWeek    PeriodType = "week"
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// ParsePeriodType converts a string to a PeriodType.
func ParsePeriodType(s string) (PeriodType, error) {
	switch p := PeriodType(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	default:
		return "", &ArgumentError{Arg: "period", Msg: fmt.Sprintf("unknown period type %q", s)}
	}
}

// Summary is a narrative for one period, keyed by (Start, End, Period).
type Summary struct {
	ID        int64      `json:"id,omitempty"`
	Start     time.Time  `json:"date_start"`
	End       time.Time  `json:"date_end"`
	Period    PeriodType `json:"period_type"`
	Text      string     `json:"summary"`
	Model     string     `json:"model"`
	CreatedAt time.Time  `json:"created_at"`
}

// Range returns the summary bounds as a DateRange.
func (s Summary) Range() DateRange {
	return DateRange{Start: dateOf(s.Start), End: dateOf(s.End)}
}
