package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pbaille/timeline/internal/domain"
)

// ValidationError is one invalid field.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var (
	groupByModes = []string{"flat", "hour", "period"}
	colorModes   = []string{"auto", "always", "never"}
	backends     = []string{"claude-cli", "anthropic", "openai"}
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"console", "json"}
	costClasses  = []string{"", "cheap", "expensive"}
)

// Validate checks every field and returns all problems as one ConfigError.
func (c Config) Validate() error {
	var errs []ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := c.Location(); err != nil {
		add("general.timezone", "%v", err)
	}
	for _, f := range []struct{ path, value string }{
		{"general.work_hours.start", c.General.WorkHours.Start},
		{"general.work_hours.end", c.General.WorkHours.End},
		{"general.lunch_boundary", c.General.LunchBoundary},
	} {
		if !ValidClock(f.value) {
			add(f.path, "invalid time format %q (expected HH:MM)", f.value)
		}
	}
	if !oneOf(c.General.LogLevel, logLevels) {
		add("general.log_level", "must be one of %s", strings.Join(logLevels, ", "))
	}
	if !oneOf(c.General.LogFormat, logFormats) {
		add("general.log_format", "must be one of %s", strings.Join(logFormats, ", "))
	}

	for i, m := range c.Projects.Mapping {
		if m.Pattern == "" {
			add(fmt.Sprintf("projects.mapping[%d]", i), "pattern is empty")
		}
	}

	for i, a := range c.Collectors.Git.Authors {
		if strings.TrimSpace(a.Email) == "" {
			add(fmt.Sprintf("collectors.git.authors[%d]", i), "author email is required")
		}
	}
	if c.Collectors.Browser.Enabled && c.Collectors.Browser.PlacesPath == "" {
		add("collectors.browser.places_path", "required when the browser collector is enabled")
	}
	for i, d := range c.Collectors.Browser.SkipDomains {
		if strings.TrimSpace(d) == "" {
			add(fmt.Sprintf("collectors.browser.skip_domains[%d]", i), "domain is empty")
		}
	}
	seen := map[string]bool{}
	for i, imp := range c.Collectors.Imports {
		path := fmt.Sprintf("collectors.imports[%d]", i)
		if !domain.IsKnownSource(imp.Source) {
			add(path+".source", "unknown source %q (known: %s)", imp.Source, strings.Join(domain.KnownSources, ", "))
		}
		if imp.Path == "" {
			add(path+".path", "required")
		}
		if !oneOf(imp.Cost, costClasses) {
			add(path+".cost", "must be cheap or expensive")
		}
		name := imp.Name
		if name == "" {
			name = imp.Source
		}
		if seen[name] {
			add(path+".name", "duplicate import name %q", name)
		}
		seen[name] = true
	}

	if !oneOf(c.Exporters.Stdout.GroupBy, groupByModes) {
		add("exporters.stdout.group_by", "must be one of %s", strings.Join(groupByModes, ", "))
	}
	if !oneOf(c.Exporters.Stdout.Color, colorModes) {
		add("exporters.stdout.color", "must be one of %s", strings.Join(colorModes, ", "))
	}
	if !oneOf(c.Summarizer.Backend, backends) {
		add("summarizer.backend", "must be one of %s", strings.Join(backends, ", "))
	}

	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return &domain.ConfigError{Path: c.path, Err: errors.Join(joined...)}
}

// ValidClock reports whether s is a 24h HH:MM time.
func ValidClock(s string) bool {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return false
	}
	hour, err1 := strconv.Atoi(h)
	minute, err2 := strconv.Atoi(m)
	return err1 == nil && err2 == nil && hour >= 0 && hour < 24 && minute >= 0 && minute < 60
}

// ParseClock returns the hour and minute of a valid HH:MM string.
func ParseClock(s string) (hour, minute int, err error) {
	if !ValidClock(s) {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	h, m, _ := strings.Cut(s, ":")
	hour, _ = strconv.Atoi(h)
	minute, _ = strconv.Atoi(m)
	return hour, minute, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
