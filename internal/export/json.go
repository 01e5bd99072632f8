package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pbaille/timeline/internal/domain"
)

// JSON writes the timeline as one indented JSON document for scripting.
type JSON struct{}

type jsonFilter struct {
	Mode    domain.FilterMode `json:"mode"`
	Sources []string          `json:"sources"`
}

type jsonDocument struct {
	Start   string                 `json:"start"`
	End     string                 `json:"end"`
	Filter  *jsonFilter            `json:"filter,omitempty"`
	Events  []domain.TimelineEvent `json:"events"`
	Summary *domain.Summary        `json:"summary,omitempty"`
}

func (JSON) Export(w io.Writer, events []domain.TimelineEvent, summary *domain.Summary, r domain.DateRange, _ Display, filter *domain.SourceFilter) error {
	doc := jsonDocument{
		Start:   r.Start.Format(domain.DateLayout),
		End:     r.End.Format(domain.DateLayout),
		Events:  events,
		Summary: summary,
	}
	if doc.Events == nil {
		doc.Events = []domain.TimelineEvent{}
	}
	if filter != nil {
		doc.Filter = &jsonFilter{Mode: filter.Mode(), Sources: filter.Sources()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	return nil
}
