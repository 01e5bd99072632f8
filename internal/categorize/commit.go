package categorize

import (
	"path"
	"regexp"
	"strings"
)

// FallbackCommit is the category of a commit nothing else explains.
const FallbackCommit = "commit"

var conventionalTypes = map[string]string{
	"feat":     "feature",
	"fix":      "bugfix",
	"docs":     "docs",
	"style":    "style",
	"refactor": "refactor",
	"perf":     "performance",
	"test":     "test",
	"build":    "build",
	"ci":       "ci",
	"chore":    "chore",
	"revert":   "revert",
}

var conventionalRe = regexp.MustCompile(`(?i)^(feat|fix|docs|style|refactor|perf|test|build|ci|chore|revert)(?:\(.+?\))?!?:\s*(.+)`)

var (
	ciPatterns     = []string{".github/", "dockerfile", "docker-compose", ".gitlab-ci", "jenkinsfile"}
	testPatterns   = []string{"test_", "_test.", "tests/", "test/", "spec/", ".spec.", ".test."}
	docExtensions  = map[string]bool{".md": true, ".rst": true, ".txt": true, ".adoc": true}
	confExtensions = map[string]bool{".toml": true, ".yaml": true, ".yml": true, ".json": true, ".ini": true, ".cfg": true, ".env": true}
)

// FileChange is one file touched by a commit.
type FileChange struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// Commit categorizes commits: conventional prefix, then changed files, then
// FallbackCommit.
type Commit struct {
	files *Chain
}

// NewCommit returns a commit categorizer.
func NewCommit() *Commit {
	return &Commit{
		files: NewChain("code",
			Rule{Name: "ci", Category: "ci", Match: containsAny(ciPatterns...)},
			Rule{Name: "test", Category: "test", Match: containsAny(testPatterns...)},
			Rule{Name: "docs", Category: "docs", Match: func(p string) bool { return docExtensions[suffix(p)] }},
			Rule{Name: "config", Category: "config", Match: func(p string) bool { return confExtensions[suffix(p)] }},
		),
	}
}

// Categorize returns the category for a commit subject and its changed files.
func (c *Commit) Categorize(subject string, files []FileChange) string {
	if m := conventionalRe.FindStringSubmatch(subject); m != nil {
		if cat, ok := conventionalTypes[strings.ToLower(m[1])]; ok {
			return cat
		}
	}
	if cat := c.byFiles(files); cat != "" {
		return cat
	}
	return FallbackCommit
}

func (c *Commit) byFiles(files []FileChange) string {
	if len(files) == 0 {
		return ""
	}
	seen := map[string]struct{}{}
	for _, f := range files {
		seen[c.files.Categorize(strings.ToLower(f.Path))] = struct{}{}
	}
	if len(seen) == 1 {
		for cat := range seen {
			return cat
		}
	}
	if _, ok := seen["code"]; ok {
		return "code"
	}
	return ""
}

// CleanSubject strips a conventional-commit prefix and surrounding space.
func CleanSubject(subject string) string {
	if m := conventionalRe.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(subject)
}

// suffix is the extension of the last path element. Dotfiles such as ".env"
// have none.
func suffix(p string) string {
	base := path.Base(p)
	if strings.LastIndex(base, ".") <= 0 {
		return ""
	}
	return path.Ext(base)
}
