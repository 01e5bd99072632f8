// Package transform turns raw collector records into timeline events.
package transform

import (
	"sort"

	"github.com/pbaille/timeline/internal/categorize"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/project"
)

// Parser converts one raw record. ok is false when the record is dropped.
type Parser interface {
	Parse(raw domain.RawEvent) (ev domain.TimelineEvent, ok bool)
}

// Options configure the parsers.
type Options struct {
	Projects    *project.Mapper
	SkipDomains []string
}

// Stats counts the outcome of one Transform call.
type Stats struct {
	Parsed  int
	Dropped map[string]int // by source
	Unknown int
}

// Dispatcher routes raw records to the parser registered for their source.
type Dispatcher struct {
	parsers map[string]Parser
}

// NewDispatcher assembles one parser per known source.
func NewDispatcher(opts Options) *Dispatcher {
	return &Dispatcher{parsers: map[string]Parser{
		domain.SourceGit: &gitParser{
			commits:  categorize.NewCommit(),
			projects: opts.Projects,
		},
		domain.SourceShell: &shellParser{
			shell:    categorize.NewShell(),
			projects: opts.Projects,
		},
		domain.SourceBrowser: &browserParser{
			browser:     categorize.NewBrowser(),
			skipDomains: opts.SkipDomains,
		},
		domain.SourceSession:  sessionParser{},
		domain.SourceCalendar: calendarParser{},
	}}
}

// Sources returns the source tags with a registered parser, sorted.
func (d *Dispatcher) Sources() []string {
	out := make([]string, 0, len(d.parsers))
	for s := range d.parsers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Transform parses raws in order. Unknown sources and records a parser
// rejects are skipped; the batch always completes.
func (d *Dispatcher) Transform(raws []domain.RawEvent) ([]domain.TimelineEvent, Stats) {
	stats := Stats{Dropped: map[string]int{}}
	events := make([]domain.TimelineEvent, 0, len(raws))
	for _, raw := range raws {
		p, found := d.parsers[raw.Source]
		if !found {
			stats.Unknown++
			continue
		}
		ev, ok := safeParse(p, raw)
		if !ok {
			stats.Dropped[raw.Source]++
			continue
		}
		if raw.ID != 0 {
			id := raw.ID
			ev.RawEventID = &id
		}
		ev.Seal()
		events = append(events, ev)
		stats.Parsed++
	}
	return events, stats
}

func safeParse(p Parser, raw domain.RawEvent) (ev domain.TimelineEvent, ok bool) {
	defer func() {
		if recover() != nil {
			ev, ok = domain.TimelineEvent{}, false
		}
	}()
	return p.Parse(raw)
}
