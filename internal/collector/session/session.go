// Package session collects workstation logon, logoff, lock and unlock events
// from the Windows event log through wevtutil.
package session

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

func init() {
	collector.Register(collector.KindSession, func(cfg config.Config) ([]collector.Collector, error) {
		if !cfg.Collectors.Session.Enabled {
			return nil, nil
		}
		return []collector.Collector{New(cfg.Collectors.Session.Timeout)}, nil
	})
}

// logQuery is one event log and the event ids read from it.
type logQuery struct {
	log   string
	kinds map[string]string
	// sessionFiltered events carry a terminal session id; only console
	// sessions are kept.
	sessionFiltered bool
}

var queries = []logQuery{
	{log: "System", kinds: map[string]string{"7001": "logon", "7002": "logoff"}, sessionFiltered: true},
	// Reading the Security log needs elevation; without it lock state is
	// simply missing.
	{log: "Security", kinds: map[string]string{"4800": "lock", "4801": "unlock"}},
}

// consoleSessions are the session ids of the local console. An event without
// a session id is kept.
var consoleSessions = map[string]bool{"": true, "0": true, "1": true, "6": true}

// RunFunc runs wevtutil with args and returns stdout.
type RunFunc func(ctx context.Context, args ...string) (string, error)

type Collector struct {
	timeout time.Duration
	run     RunFunc
	now     func() time.Time
}

func New(timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Collector{timeout: timeout, now: time.Now}
	c.run = c.execWevtutil
	return c
}

// WithRunner replaces the wevtutil invocation, for tests.
func (c *Collector) WithRunner(run RunFunc) *Collector {
	c.run = run
	return c
}

func (c *Collector) Source() string { return domain.SourceSession }
func (c *Collector) Policy() collector.Policy { return collector.CheapPolicy }

// Collect reads both logs. Where wevtutil is unavailable or access is
// denied, the affected log contributes nothing.
func (c *Collector) Collect(ctx context.Context, r domain.DateRange) ([]domain.RawEvent, error) {
	now := c.now()
	var events []domain.RawEvent
	for _, q := range queries {
		out, err := c.run(ctx, "qe", q.log, "/f:xml", "/q:"+q.filter(r))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		parsed, err := parseEvents(out, q, r)
		if err != nil {
			continue
		}
		for _, e := range parsed {
			ts := e.time
			events = append(events, domain.NewRawEvent(domain.SourceSession, now, &ts, map[string]any{
				"event_type": e.kind,
				"event_id":   e.id,
				"timestamp":  ts.Format(time.RFC3339Nano),
			}))
		}
	}
	return events, nil
}

// systemTimeLayout is the event log's TimeCreated format.
const systemTimeLayout = "2006-01-02T15:04:05.000Z"

// filter is an XPath selecting the query's event ids created within r.
func (q logQuery) filter(r domain.DateRange) string {
	ids := make([]string, 0, len(q.kinds))
	for id := range q.kinds {
		ids = append(ids, "EventID="+id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("*[System[(%s) and TimeCreated[@SystemTime>='%s' and @SystemTime<'%s']]]",
		strings.Join(ids, " or "),
		r.StartUTC().Format(systemTimeLayout),
		r.EndUTC().Format(systemTimeLayout))
}

func (c *Collector) execWevtutil(ctx context.Context, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "wevtutil", args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(strings.ToLower(string(exitErr.Stderr)), "denied") {
			return "", fmt.Errorf("wevtutil %s: access denied", args[1])
		}
		return "", fmt.Errorf("wevtutil %s: %w", args[1], err)
	}
	return string(out), nil
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type xmlEvent struct {
	System struct {
		EventID     string `xml:"EventID"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
	} `xml:"System"`
	EventData struct {
		Data []xmlData `xml:"Data"`
	} `xml:"EventData"`
}

// sessionID reads SessionID or TSId from the event data.
func (e xmlEvent) sessionID() string {
	for _, d := range e.EventData.Data {
		if (d.Name == "SessionID" || d.Name == "TSId") && strings.TrimSpace(d.Value) != "" {
			return strings.TrimSpace(d.Value)
		}
	}
	return ""
}

type sessionEvent struct {
	kind string
	id   int
	time time.Time
}

// parseEvents reads wevtutil output, a sequence of <Event> elements with no
// root.
func parseEvents(out string, q logQuery, r domain.DateRange) ([]sessionEvent, error) {
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	var doc struct {
		Events []xmlEvent `xml:"Event"`
	}
	if err := xml.Unmarshal([]byte("<root>"+out+"</root>"), &doc); err != nil {
		return nil, fmt.Errorf("parse %s log: %w", q.log, err)
	}

	var events []sessionEvent
	for _, e := range doc.Events {
		id := strings.TrimSpace(e.System.EventID)
		kind, ok := q.kinds[id]
		if !ok {
			continue
		}
		ts, err := domain.ParseTimestamp(e.System.TimeCreated.SystemTime)
		if err != nil || !r.Contains(ts) {
			continue
		}
		if q.sessionFiltered && !consoleSessions[e.sessionID()] {
			continue
		}
		n, _ := strconv.Atoi(id)
		events = append(events, sessionEvent{kind: kind, id: n, time: ts})
	}
	return events, nil
}
