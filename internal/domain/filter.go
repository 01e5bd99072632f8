package domain

import (
	"sort"
	"strings"
)

// FilterMode selects whether a SourceFilter keeps or drops its sources.
type FilterMode string

const (
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// SourceFilter restricts events by source tag. It is never mutated after
// construction.
type SourceFilter struct {
	mode    FilterMode
	sources map[string]struct{}
}

// NewSourceFilter returns nil when both lists are empty, and an error when both
// are set.
func NewSourceFilter(include, exclude []string) (*SourceFilter, error) {
	include, exclude = normalizeSources(include), normalizeSources(exclude)
	switch {
	case len(include) > 0 && len(exclude) > 0:
		return nil, &ArgumentError{Arg: "source filter", Msg: "cannot use include and exclude together"}
	case len(include) > 0:
		return newFilter(FilterInclude, include), nil
	case len(exclude) > 0:
		return newFilter(FilterExclude, exclude), nil
	default:
		return nil, nil
	}
}

func newFilter(mode FilterMode, sources []string) *SourceFilter {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &SourceFilter{mode: mode, sources: set}
}

func normalizeSources(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Mode returns the filter mode.
func (f *SourceFilter) Mode() FilterMode { return f.mode }

// Sources returns the filtered source tags, sorted.
func (f *SourceFilter) Sources() []string {
	out := make([]string, 0, len(f.sources))
	for s := range f.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Allows reports whether events from source pass the filter. A nil filter
// allows everything.
func (f *SourceFilter) Allows(source string) bool {
	if f == nil {
		return true
	}
	_, in := f.sources[source]
	if f.mode == FilterInclude {
		return in
	}
	return !in
}

// Apply returns the events that pass the filter, preserving order.
func (f *SourceFilter) Apply(events []TimelineEvent) []TimelineEvent {
	if f == nil {
		return events
	}
	out := make([]TimelineEvent, 0, len(events))
	for _, e := range events {
		if f.Allows(e.Source) {
			out = append(out, e)
		}
	}
	return out
}
