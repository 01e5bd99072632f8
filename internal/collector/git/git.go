// Package git collects the configured authors' commits from local
// repositories.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

func init() {
	collector.Register(collector.KindGit, func(cfg config.Config) ([]collector.Collector, error) {
		if !cfg.Collectors.Git.Enabled || len(cfg.Collectors.Git.Repos) == 0 {
			return nil, nil
		}
		return []collector.Collector{New(cfg.Collectors.Git)}, nil
	})
}

// commitSep starts every commit in git log output.
const commitSep = "---TIMELINE_COMMIT_SEP---"

// logFormat fields are NUL separated; the body is last since it may span lines.
const logFormat = "%H%x00%an%x00%ae%x00%aI%x00%s%x00%D%x00%b"

var logFields = []string{"hash", "author_name", "author_email", "timestamp", "subject", "refs", "body"}

// RunFunc runs git in dir and returns stdout.
type RunFunc func(ctx context.Context, dir string, args ...string) (string, error)

// Collector reads commits with git log --all, recovers orphaned commits from
// the reflog and attaches per-file numstat.
type Collector struct {
	repos   []string
	authors map[string]bool
	timeout time.Duration
	run     RunFunc
	now     func() time.Time
}

// New returns a git collector for cfg.
func New(cfg config.GitConfig) *Collector {
	authors := map[string]bool{}
	for _, a := range cfg.Authors {
		authors[strings.ToLower(strings.TrimSpace(a.Email))] = true
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Collector{
		repos:   cfg.Repos,
		authors: authors,
		timeout: timeout,
		now:     time.Now,
	}
	c.run = c.execGit
	return c
}

// WithRunner replaces the git invocation, for tests.
func (c *Collector) WithRunner(run RunFunc) *Collector {
	c.run = run
	return c
}

func (c *Collector) Source() string { return domain.SourceGit }
func (c *Collector) Policy() collector.Policy { return collector.CheapPolicy }

// Collect returns one record per commit across all repos; a commit reachable
// from several repos is reported once.
func (c *Collector) Collect(ctx context.Context, r domain.DateRange) ([]domain.RawEvent, error) {
	now := c.now()
	seen := map[string]bool{}
	var events []domain.RawEvent

	for _, repo := range c.repos {
		if _, err := os.Stat(filepath.Join(repo, ".git")); err != nil {
			continue
		}
		commits, err := c.collectRepo(ctx, repo, r)
		if err != nil {
			return nil, fmt.Errorf("repo %s: %w", repo, err)
		}
		for _, commit := range commits {
			hash := commit["hash"].(string)
			if seen[hash] {
				continue
			}
			seen[hash] = true

			commit["repo_path"] = repo
			commit["repo_name"] = filepath.Base(repo)

			var eventTime *time.Time
			if ts, ok := domain.PayloadTime(commit, "timestamp"); ok {
				eventTime = &ts
			}
			events = append(events, domain.NewRawEvent(domain.SourceGit, now, eventTime, commit))
		}
	}
	return events, nil
}

func (c *Collector) collectRepo(ctx context.Context, repo string, r domain.DateRange) ([]map[string]any, error) {
	after := "--after=" + r.StartUTC().Format(time.RFC3339)
	before := "--before=" + r.EndUTC().Format(time.RFC3339)

	out, err := c.run(ctx, repo, "log", "--all", after, before, "--format="+commitSep+logFormat)
	if err != nil {
		return nil, err
	}

	var commits []map[string]any
	seen := map[string]bool{}
	for _, commit := range parseLog(out) {
		hash := commit["hash"].(string)
		if c.wanted(commit) && !seen[hash] {
			seen[hash] = true
			commits = append(commits, commit)
		}
	}

	// The reflog still knows commits that no branch reaches any more.
	reflog, err := c.run(ctx, repo, "reflog", after, before, "--format=%H")
	if err == nil {
		var orphaned []string
		for _, line := range strings.Split(reflog, "\n") {
			if h := strings.TrimSpace(line); h != "" && !seen[h] {
				orphaned = append(orphaned, h)
				seen[h] = true
			}
		}
		sort.Strings(orphaned)
		for _, h := range orphaned {
			detail, err := c.run(ctx, repo, "log", "-1", "--format="+logFormat, h)
			if err != nil {
				continue
			}
			if commit := parseCommit(strings.TrimSpace(detail)); commit != nil && c.wanted(commit) {
				commits = append(commits, commit)
			}
		}
	}

	for _, commit := range commits {
		numstat, err := c.run(ctx, repo, "diff-tree", "--no-commit-id", "--numstat", "-r", commit["hash"].(string))
		if err != nil {
			numstat = ""
		}
		commit["files"] = parseNumstat(numstat)
	}
	return commits, nil
}

// wanted applies the author filter. With no authors configured every commit
// is kept.
func (c *Collector) wanted(commit map[string]any) bool {
	if len(c.authors) == 0 {
		return true
	}
	email, _ := commit["author_email"].(string)
	return c.authors[strings.ToLower(email)]
}

func (c *Collector) execGit(ctx context.Context, dir string, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if execCtx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", args[0], execCtx.Err())
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.ToValidUTF8(string(out), "\uFFFD"), nil
}

func parseLog(out string) []map[string]any {
	var commits []map[string]any
	for _, chunk := range strings.Split(out, commitSep) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if commit := parseCommit(chunk); commit != nil {
			commits = append(commits, commit)
		}
	}
	return commits
}

func parseCommit(raw string) map[string]any {
	parts := strings.Split(raw, "\x00")
	if len(parts) < len(logFields) {
		return nil
	}
	commit := make(map[string]any, len(logFields)+3)
	for i, field := range logFields {
		commit[field] = strings.TrimSpace(parts[i])
	}
	if commit["hash"] == "" {
		return nil
	}
	return commit
}

// parseNumstat reads "added<TAB>deleted<TAB>path" lines. Binary files report
// "-" and count as zero.
func parseNumstat(out string) []any {
	files := []any{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 3 {
			continue
		}
		files = append(files, map[string]any{
			"path":       parts[2],
			"insertions": numstatCount(parts[0]),
			"deletions":  numstatCount(parts[1]),
		})
	}
	return files
}

func numstatCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
