package transform

import (
	"fmt"
	"strings"

	"github.com/pbaille/timeline/internal/categorize"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/project"
	"github.com/pbaille/timeline/internal/textutil"
)

type gitParser struct {
	commits  *categorize.Commit
	projects *project.Mapper
}

func (p *gitParser) Parse(raw domain.RawEvent) (domain.TimelineEvent, bool) {
	data := raw.Payload
	ts, ok := domain.PayloadTime(data, "timestamp")
	if !ok {
		return domain.TimelineEvent{}, false
	}
	subject := strings.TrimSpace(str(data, "subject"))
	if subject == "" {
		return domain.TimelineEvent{}, false
	}

	files := fileChanges(data)
	repoName := strOr(data, "repo_name", "unknown")
	repoPath := str(data, "repo_path")

	paths := make([]string, 0, len(files))
	var ins, del int
	for _, f := range files {
		paths = append(paths, f.Path)
		ins += f.Insertions
		del += f.Deletions
	}

	return domain.TimelineEvent{
		Timestamp:   ts,
		Source:      domain.SourceGit,
		Category:    p.commits.Categorize(subject, files),
		Description: categorize.CleanSubject(subject),
		Project:     p.projects.FromRepo(repoName, repoPath),
		Metadata: map[string]any{
			"commit_hash":   str(data, "hash"),
			"author_email":  str(data, "author_email"),
			"author_name":   str(data, "author_name"),
			"repo_name":     repoName,
			"repo_path":     repoPath,
			"branch":        str(data, "refs"),
			"files_changed": paths,
			"insertions":    ins,
			"deletions":     del,
		},
	}, true
}

type shellParser struct {
	shell    *categorize.Shell
	projects *project.Mapper
}

func (p *shellParser) Parse(raw domain.RawEvent) (domain.TimelineEvent, bool) {
	data := raw.Payload
	ts, ok := domain.PayloadTime(data, "timestamp")
	if !ok {
		return domain.TimelineEvent{}, false
	}
	command := strings.TrimSpace(str(data, "command"))
	if command == "" {
		return domain.TimelineEvent{}, false
	}
	cwd := str(data, "cwd")

	return domain.TimelineEvent{
		Timestamp:   ts,
		Source:      domain.SourceShell,
		Category:    p.shell.Categorize(command),
		Description: command,
		Project:     p.projects.FromCwd(cwd),
		Metadata: map[string]any{
			"command": command,
			"cwd":     cwd,
			"shell":   str(data, "shell"),
			"pid":     str(data, "pid"),
		},
	}, true
}

type browserParser struct {
	browser     *categorize.Browser
	skipDomains []string
}

func (p *browserParser) Parse(raw domain.RawEvent) (domain.TimelineEvent, bool) {
	data := raw.Payload
	ts, ok := domain.PayloadTime(data, "timestamp")
	if !ok {
		return domain.TimelineEvent{}, false
	}
	url, title, site := str(data, "url"), str(data, "title"), str(data, "domain")
	for _, skip := range p.skipDomains {
		if skip != "" && strings.Contains(site, skip) {
			return domain.TimelineEvent{}, false
		}
	}

	description := title
	if description == "" {
		description = site
	}

	// Browsing is cross-cutting, so no project.
	return domain.TimelineEvent{
		Timestamp:   ts,
		Source:      domain.SourceBrowser,
		Category:    p.browser.Categorize(site),
		Description: description,
		Metadata: map[string]any{
			"url":         url,
			"title":       title,
			"domain":      site,
			"site_name":   str(data, "site_name"),
			"visit_type":  num(data, "visit_type"),
			"visit_count": num(data, "visit_count"),
		},
	}, true
}

var sessionStates = map[string]string{
	"logon":  "active",
	"unlock": "active",
	"logoff": "afk",
	"lock":   "afk",
}

type sessionParser struct{}

func (sessionParser) Parse(raw domain.RawEvent) (domain.TimelineEvent, bool) {
	data := raw.Payload
	ts, ok := domain.PayloadTime(data, "timestamp")
	if !ok {
		return domain.TimelineEvent{}, false
	}
	kind := strings.ToLower(str(data, "event_type"))
	category, known := sessionStates[kind]
	if !known {
		return domain.TimelineEvent{}, false
	}

	return domain.TimelineEvent{
		Timestamp:   ts,
		Source:      domain.SourceSession,
		Category:    category,
		Description: fmt.Sprintf("Workstation %s", kind),
		Metadata: map[string]any{
			"event_type": kind,
			"event_id":   str(data, "event_id"),
		},
	}, true
}

// CategoryCalendar is the fixed category of calendar events.
const CategoryCalendar = "calendar"

type calendarParser struct{}

func (calendarParser) Parse(raw domain.RawEvent) (domain.TimelineEvent, bool) {
	data := raw.Payload
	startKey := "start"
	if _, has := data[startKey]; !has {
		startKey = "start_iso"
	}
	ts, ok := domain.PayloadTime(data, startKey)
	if !ok {
		return domain.TimelineEvent{}, false
	}
	subject := strings.TrimSpace(str(data, "subject"))
	if subject == "" {
		return domain.TimelineEvent{}, false
	}

	ev := domain.TimelineEvent{
		Timestamp:   ts,
		Source:      domain.SourceCalendar,
		Category:    CategoryCalendar,
		Description: subject,
		Project:     calendarProject(str(data, "mailbox"), str(data, "account_email")),
		Metadata: map[string]any{
			"organizer":       str(data, "organizer"),
			"organizer_name":  str(data, "organizer_name"),
			"organizer_email": str(data, "organizer_email"),
			"location":        str(data, "location"),
			"is_recurring":    boolean(data, "is_recurring"),
		},
	}

	endKey := "end"
	if str(data, endKey) == "" {
		endKey = "end_iso"
	}
	// A bad end time is not fatal.
	if end, ok := domain.PayloadTime(data, endKey); ok {
		ev.EndTime = &end
	}
	if body := str(data, "body"); body != "" {
		if text := textutil.HTMLToText(body); text != "" {
			ev.Metadata["body_text"] = text
		}
	}
	return ev, true
}

// calendarProject derives a project from a mailbox ("me@acme.com" gives
// "Acme"), else the account email.
func calendarProject(mailbox, account string) string {
	if mailbox == "" {
		return account
	}
	at := strings.Index(mailbox, "@")
	if at < 0 {
		return mailbox
	}
	label, _, _ := strings.Cut(mailbox[at+1:], ".")
	return capitalize(label)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
