// Package project maps repositories and working directories to project names.
package project

import "strings"

// Mapping assigns Project to anything whose name or path contains Pattern.
type Mapping struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Project string `yaml:"project" json:"project"`
}

// Mapper resolves project names. Mappings are tried in configuration order.
type Mapper struct {
	mappings []Mapping
}

// NewMapper returns a Mapper over mappings, skipping empty patterns.
func NewMapper(mappings []Mapping) *Mapper {
	m := &Mapper{}
	for _, mp := range mappings {
		if mp.Pattern != "" {
			m.mappings = append(m.mappings, mp)
		}
	}
	return m
}

func (m *Mapper) lookup(candidates ...string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, mp := range m.mappings {
		for _, c := range candidates {
			if strings.Contains(c, mp.Pattern) {
				return mp.Project, true
			}
		}
	}
	return "", false
}

// FromRepo returns the mapped project for a repository, or its name.
func (m *Mapper) FromRepo(name, path string) string {
	if p, ok := m.lookup(name, path); ok {
		return p
	}
	return name
}

// FromCwd returns the mapped project for a working directory, or its last
// path segment. Empty input yields "".
func (m *Mapper) FromCwd(cwd string) string {
	if cwd == "" {
		return ""
	}
	if p, ok := m.lookup(cwd); ok {
		return p
	}
	trimmed := strings.TrimRight(strings.ReplaceAll(cwd, `\`, "/"), "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}
