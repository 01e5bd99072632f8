package collector

import (
	"fmt"
	"sort"

	"github.com/pbaille/timeline/internal/config"
)

// Constructor builds the collectors of one kind from configuration. A
// disabled kind returns none.
type Constructor func(cfg config.Config) ([]Collector, error)

// Kinds in build order.
const (
	KindGit     = "git"
	KindShell   = "shell"
	KindBrowser = "browser"
	KindSession = "session"
	KindImports = "imports"
)

var buildOrder = []string{KindGit, KindShell, KindBrowser, KindSession, KindImports}

var registry = map[string]Constructor{}

// Register adds a constructor under kind. Collector packages call it from
// init; registering a kind twice panics.
func Register(kind string, ctor Constructor) {
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("collector kind %q registered twice", kind))
	}
	registry[kind] = ctor
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the enabled collectors in build order. Kinds with no
// registered constructor are skipped.
func Build(cfg config.Config) ([]Collector, error) {
	var out []Collector
	for _, kind := range orderedKinds() {
		ctor := registry[kind]
		cs, err := ctor(cfg)
		if err != nil {
			return nil, fmt.Errorf("build %s collector: %w", kind, err)
		}
		out = append(out, cs...)
	}
	return out, nil
}

func orderedKinds() []string {
	var kinds []string
	known := map[string]bool{}
	for _, k := range buildOrder {
		known[k] = true
		if _, ok := registry[k]; ok {
			kinds = append(kinds, k)
		}
	}
	var extra []string
	for k := range registry {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(kinds, extra...)
}
