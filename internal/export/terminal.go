package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/textutil"
)

var sourceColors = map[string]lipgloss.Color{
	domain.SourceGit:      lipgloss.Color("6"),
	domain.SourceBrowser:  lipgloss.Color("5"),
	domain.SourceShell:    lipgloss.Color("7"),
	domain.SourceSession:  lipgloss.Color("4"),
	domain.SourceCalendar: lipgloss.Color("13"),
}

var categoryColors = map[string]lipgloss.Color{
	"feature":     lipgloss.Color("2"),
	"bugfix":      lipgloss.Color("1"),
	"refactor":    lipgloss.Color("3"),
	"test":        lipgloss.Color("6"),
	"docs":        lipgloss.Color("4"),
	"chore":       lipgloss.Color("7"),
	"ci":          lipgloss.Color("5"),
	"config":      lipgloss.Color("7"),
	"code":        lipgloss.Color("15"),
	"build":       lipgloss.Color("3"),
	"performance": lipgloss.Color("10"),
	"style":       lipgloss.Color("12"),
	"revert":      lipgloss.Color("9"),
	"active":      lipgloss.Color("2"),
	"afk":         lipgloss.Color("8"),
}

const (
	rule           = 40
	maxDescription = 200
)

// Terminal renders a human-readable timeline with lipgloss styles.
type Terminal struct{}

type styles struct {
	bold, dim, project, ins, del lipgloss.Style
	r                            *lipgloss.Renderer
}

func newStyles(w io.Writer, mode string) styles {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	}
	return styles{
		r:       r,
		bold:    r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
		project: r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		ins:     r.NewStyle().Foreground(lipgloss.Color("2")),
		del:     r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (s styles) fg(c lipgloss.Color) lipgloss.Style {
	return s.r.NewStyle().Foreground(c)
}

func (Terminal) Export(w io.Writer, events []domain.TimelineEvent, summary *domain.Summary, r domain.DateRange, d Display, filter *domain.SourceFilter) error {
	d = d.normalized()
	t := &terminalWriter{st: newStyles(w, d.Color), d: d}

	t.header(r, events, filter)
	switch d.GroupBy {
	case GroupHour:
		t.byHour(events, r.Days() > 1)
	case GroupPeriod:
		if err := t.byPeriod(events); err != nil {
			return err
		}
	default:
		t.flat(events)
	}
	t.summary(summary)

	_, err := io.WriteString(w, t.sb.String())
	return err
}

type terminalWriter struct {
	sb strings.Builder
	st styles
	d  Display
}

func (t *terminalWriter) line(parts ...string) {
	t.sb.WriteString(strings.Join(parts, ""))
	t.sb.WriteByte('\n')
}

func (t *terminalWriter) local(ts time.Time) time.Time { return ts.In(t.d.Location) }

func (t *terminalWriter) header(r domain.DateRange, events []domain.TimelineEvent, filter *domain.SourceFilter) {
	var title string
	if r.Days() == 1 {
		title = fmt.Sprintf("%s - %s", r.Start.Format(domain.DateLayout), r.Start.Weekday())
	} else {
		title = fmt.Sprintf("%s to %s", r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	}

	t.line()
	t.line("  ", t.st.bold.Render(title))
	t.line("  ", t.st.dim.Render(strings.Repeat("=", len(title))))

	if filter != nil {
		sources := strings.Join(filter.Sources(), ", ")
		if filter.Mode() == domain.FilterInclude {
			t.line("  ", t.st.dim.Render("Showing: "+sources+" only"))
		} else {
			t.line("  ", t.st.dim.Render("Excluding: "+sources))
		}
	}

	if len(events) > 0 {
		first, last := t.local(events[0].Timestamp), t.local(events[len(events)-1].Timestamp)
		t.line("  ", t.st.dim.Render("First activity: "), t.st.bold.Render(first.Format("15:04")),
			t.st.dim.Render("  Last activity: "), t.st.bold.Render(last.Format("15:04")))
	}

	if projects := projectNames(events); len(projects) > 0 {
		t.line("  ", t.st.dim.Render("Projects: "), t.st.fg(lipgloss.Color("15")).Render(strings.Join(projects, ", ")))
	}
	t.line()
}

func (t *terminalWriter) noEvents() {
	t.line("  ", t.st.dim.Render("(no events)"))
}

func (t *terminalWriter) noActivity() {
	t.line("    ", t.st.dim.Render("(no activity)"))
}

func (t *terminalWriter) flat(events []domain.TimelineEvent) {
	if len(events) == 0 {
		t.noEvents()
		return
	}
	for _, e := range events {
		t.event(e)
	}
}

// byHour prints one block per hour from the first to the last event. Over
// several days, hours without events are left out.
func (t *terminalWriter) byHour(events []domain.TimelineEvent, multiDay bool) {
	if len(events) == 0 {
		t.noEvents()
		return
	}

	hourOf := func(ts time.Time) time.Time {
		lt := t.local(ts)
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, lt.Location())
	}
	buckets := map[int64][]domain.TimelineEvent{}
	for _, e := range events {
		h := hourOf(e.Timestamp).Unix()
		buckets[h] = append(buckets[h], e)
	}

	label := "15:04"
	if multiDay {
		label = "2006-01-02 15:04"
	}
	first, last := hourOf(events[0].Timestamp), hourOf(events[len(events)-1].Timestamp)
	for h := first; !h.After(last); h = h.Add(time.Hour) {
		bucket := buckets[h.Unix()]
		if len(bucket) == 0 && multiDay {
			continue
		}
		t.line("  ", t.st.bold.Render(h.Format(label)), " ", t.st.dim.Render(strings.Repeat("-", rule)))
		if len(bucket) == 0 {
			t.noActivity()
		}
		for _, e := range bucket {
			t.event(e)
		}
		t.line()
	}
}

// byPeriod splits events at the lunch boundary.
func (t *terminalWriter) byPeriod(events []domain.TimelineEvent) error {
	if len(events) == 0 {
		t.noEvents()
		return nil
	}
	hour, minute, err := config.ParseClock(t.d.LunchBoundary)
	if err != nil {
		return &domain.ArgumentError{Arg: "lunch_boundary", Msg: err.Error()}
	}
	boundary := hour*60 + minute

	var morning, afternoon []domain.TimelineEvent
	for _, e := range events {
		lt := t.local(e.Timestamp)
		if lt.Hour()*60+lt.Minute() < boundary {
			morning = append(morning, e)
		} else {
			afternoon = append(afternoon, e)
		}
	}

	t.period("Morning (before "+t.d.LunchBoundary+")", morning)
	t.line()
	t.period("Afternoon (after "+t.d.LunchBoundary+")", afternoon)
	return nil
}

func (t *terminalWriter) period(title string, events []domain.TimelineEvent) {
	t.line("  ", t.st.bold.Render(title))
	t.line("  ", t.st.dim.Render(strings.Repeat("-", rule)))
	if len(events) == 0 {
		t.noActivity()
		return
	}
	for _, e := range events {
		t.event(e)
	}
}

func (t *terminalWriter) event(e domain.TimelineEvent) {
	project := e.Project
	if project == "" {
		project = "unknown"
	}

	color, ok := sourceColors[e.Source]
	if !ok {
		color = lipgloss.Color("7")
	}

	var stats string
	if e.Source == domain.SourceGit {
		ins, del := metaInt(e.Metadata, "insertions"), metaInt(e.Metadata, "deletions")
		if ins != 0 || del != 0 {
			stats = fmt.Sprintf(" (%s/%s)", t.st.ins.Render(fmt.Sprintf("+%d", ins)), t.st.del.Render(fmt.Sprintf("-%d", del)))
		}
	}

	var badge string
	if e.Category != "" && e.Category != "commit" {
		c, ok := categoryColors[e.Category]
		if !ok {
			c = lipgloss.Color("7")
		}
		badge = " " + t.st.fg(c).Render("["+e.Category+"]")
	}

	t.line("    ",
		t.st.dim.Render(t.local(e.Timestamp).Format("15:04")), "  ",
		t.st.fg(color).Render("["+e.Source+"]"), " ",
		t.st.project.Render(project), " - ",
		textutil.OneLine(e.Description, maxDescription), stats, badge)
}

func (t *terminalWriter) summary(s *domain.Summary) {
	if s != nil {
		t.line()
		t.line("  ", t.st.dim.Render(strings.Repeat("-", rule)))
		t.line("  ", t.st.bold.Render("Summary"))
		t.line("  ", t.st.dim.Render(strings.Repeat("-", rule)))
		t.line("  ", strings.ReplaceAll(strings.TrimSpace(s.Text), "\n", "\n  "))
	}
	t.line()
}

func projectNames(events []domain.TimelineEvent) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range events {
		if e.Project != "" && !seen[e.Project] {
			seen[e.Project] = true
			names = append(names, e.Project)
		}
	}
	sort.Strings(names)
	return names
}

// metaInt reads a count that may have gone through JSON.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
