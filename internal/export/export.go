// Package export renders a range of timeline events and its summary.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

// Exporter writes events and an optional summary for r.
type Exporter interface {
	Export(w io.Writer, events []domain.TimelineEvent, summary *domain.Summary, r domain.DateRange, d Display, filter *domain.SourceFilter) error
}

// Grouping modes.
const (
	GroupFlat   = "flat"
	GroupHour   = "hour"
	GroupPeriod = "period"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Display holds the rendering settings of one export. It is passed by value
// to every call; With* return modified copies.
type Display struct {
	GroupBy       string
	Location      *time.Location
	LunchBoundary string
	Color         string
}

// DisplayFromConfig reads exporters.stdout and the general timezone and lunch
// boundary.
func DisplayFromConfig(cfg config.Config) (Display, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Display{}, err
	}
	return Display{
		GroupBy:       cfg.Exporters.Stdout.GroupBy,
		Location:      loc,
		LunchBoundary: cfg.General.LunchBoundary,
		Color:         cfg.Exporters.Stdout.Color,
	}.normalized(), nil
}

// WithGroupBy returns a copy grouped by g; an empty g keeps the current mode.
func (d Display) WithGroupBy(g string) Display {
	if g != "" {
		d.GroupBy = g
	}
	return d
}

// WithColor returns a copy using color mode c; an empty c keeps the current
// mode.
func (d Display) WithColor(c string) Display {
	if c != "" {
		d.Color = c
	}
	return d
}

func (d Display) normalized() Display {
	if d.GroupBy == "" {
		d.GroupBy = GroupFlat
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.LunchBoundary == "" {
		d.LunchBoundary = "12:00"
	}
	if d.Color == "" {
		d.Color = ColorAuto
	}
	return d
}

// Validate checks the grouping mode.
func (d Display) Validate() error {
	switch d.GroupBy {
	case "", GroupFlat, GroupHour, GroupPeriod:
		return nil
	default:
		return &domain.ArgumentError{Arg: "group-by", Msg: fmt.Sprintf("unknown grouping %q (flat, hour, period)", d.GroupBy)}
	}
}

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch format {
	case "", FormatText:
		return Terminal{}, nil
	case FormatJSON:
		return JSON{}, nil
	default:
		return nil, &domain.ArgumentError{Arg: "format", Msg: fmt.Sprintf("unknown format %q (text, json)", format)}
	}
}
