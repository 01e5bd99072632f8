// Package categorize assigns categories to commits, shell commands and
// browser visits with ordered first-match rule chains.
package categorize

import "strings"

// Rule pairs a predicate with the category it assigns.
type Rule struct {
	Name     string
	Category string
	Match    func(string) bool
}

// Chain evaluates rules in order; the first match wins. Fallback is returned
// when nothing matches.
type Chain struct {
	rules    []Rule
	fallback string
}

// NewChain builds a chain terminated by fallback.
func NewChain(fallback string, rules ...Rule) *Chain {
	return &Chain{rules: rules, fallback: fallback}
}

// Categorize returns the category of the first matching rule. A predicate that
// panics counts as a non-match.
func (c *Chain) Categorize(input string) string {
	for _, r := range c.rules {
		if safeMatch(r, input) {
			return r.Category
		}
	}
	return c.fallback
}

// Rules returns the rule names in evaluation order, fallback last.
func (c *Chain) Rules() []string {
	names := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		names = append(names, r.Name)
	}
	return append(names, "fallback")
}

func safeMatch(r Rule, input string) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return r.Match(input)
}

// firstTokenIn matches when the lower-cased first whitespace token is one of
// tokens.
func firstTokenIn(tokens ...string) func(string) bool {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = struct{}{}
	}
	return func(s string) bool {
		_, ok := set[firstToken(s)]
		return ok
	}
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// containsAny matches when the lower-cased input contains any of subs.
func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		s = strings.ToLower(s)
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}
