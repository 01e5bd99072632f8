// Package config loads the timeline YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/project"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "TIMELINE_CONFIG"

type WorkHours struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type General struct {
	DBPath        string    `yaml:"db_path"`
	Timezone      string    `yaml:"timezone"` // IANA name; empty means the system zone
	WorkHours     WorkHours `yaml:"work_hours"`
	LunchBoundary string    `yaml:"lunch_boundary"`
	LogLevel      string    `yaml:"log_level"`
	LogFormat     string    `yaml:"log_format"` // console | json
}

type Projects struct {
	Mapping Mapping `yaml:"mapping"`
}

type Author struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name,omitempty"`
}

type GitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Authors []Author      `yaml:"authors"`
	Repos   []string      `yaml:"repos"`
	Timeout time.Duration `yaml:"timeout"` // per git invocation
}

type ShellConfig struct {
	Enabled     bool     `yaml:"enabled"`
	HistoryPath string   `yaml:"history_path"`
	Ignore      []string `yaml:"ignore"` // glob patterns matched against the command
}

type BrowserConfig struct {
	Enabled     bool     `yaml:"enabled"`
	PlacesPath  string   `yaml:"places_path"`
	SkipDomains []string `yaml:"skip_domains"`
}

type SessionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// ImportConfig describes a JSONL file of pre-exported records, such as a
// calendar dump.
type ImportConfig struct {
	Name        string        `yaml:"name"`
	Source      string        `yaml:"source"`
	Path        string        `yaml:"path"`
	TimeField   string        `yaml:"time_field"`
	Cost        string        `yaml:"cost"` // cheap | expensive
	TTL         time.Duration `yaml:"ttl"`
	IgnoreField string        `yaml:"ignore_field"`
	Ignore      []string      `yaml:"ignore"`
}

type Collectors struct {
	Git     GitConfig      `yaml:"git"`
	Shell   ShellConfig    `yaml:"shell"`
	Browser BrowserConfig  `yaml:"browser"`
	Session SessionConfig  `yaml:"session"`
	Imports []ImportConfig `yaml:"imports"`
}

type StdoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	GroupBy string `yaml:"group_by"` // flat | hour | period
	Color   string `yaml:"color"`    // auto | always | never
}

type Exporters struct {
	Stdout StdoutConfig `yaml:"stdout"`
}

type SummarizerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Backend   string        `yaml:"backend"` // claude-cli | anthropic | openai
	Model     string        `yaml:"model"`
	Command   string        `yaml:"command"`  // claude-cli binary
	BaseURL   string        `yaml:"base_url"` // anthropic / openai endpoint override
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile path; empty disables
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	General    General          `yaml:"general"`
	Projects   Projects         `yaml:"projects"`
	Collectors Collectors       `yaml:"collectors"`
	Exporters  Exporters        `yaml:"exporters"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	API        APIConfig        `yaml:"api"`

	path string
}

// Dir is the per-user timeline directory, ~/.timeline.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timeline"
	}
	return filepath.Join(home, ".timeline")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used for unset fields.
func Default() Config {
	dir := Dir()
	return Config{
		General: General{
			DBPath:        filepath.Join(dir, "timeline.db"),
			WorkHours:     WorkHours{Start: "08:00", End: "17:00"},
			LunchBoundary: "12:00",
			LogLevel:      "info",
			LogFormat:     "console",
		},
		Collectors: Collectors{
			Git:     GitConfig{Enabled: true, Timeout: 30 * time.Second},
			Shell:   ShellConfig{HistoryPath: filepath.Join(dir, "shell_history.jsonl")},
			Session: SessionConfig{Timeout: 30 * time.Second},
		},
		Exporters: Exporters{Stdout: StdoutConfig{Enabled: true, GroupBy: "flat", Color: "auto"}},
		Summarizer: SummarizerConfig{
			Backend:   "claude-cli",
			Command:   "claude",
			Timeout:   120 * time.Second,
			MaxTokens: 1024,
		},
		API: APIConfig{Addr: "127.0.0.1:8088"},
	}
}

// Load reads path (DefaultPath when empty) over the defaults, expands "~" in
// file paths and validates the result.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, &domain.ConfigError{Path: path, Err: errors.New("not found, run 'timeline init' to create one")}
		}
		return Config{}, &domain.ConfigError{Path: path, Err: err}
	}
	return Parse(b, path)
}

// Parse decodes YAML data over the defaults and validates it. path is only
// used in error messages.
func Parse(data []byte, path string) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, &domain.ConfigError{Path: path, Err: err}
	}
	c.path = path
	c.expandPaths()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Path is the file the config was loaded from.
func (c Config) Path() string { return c.path }

func (c *Config) expandPaths() {
	c.General.DBPath = ExpandHome(c.General.DBPath)
	c.Collectors.Shell.HistoryPath = ExpandHome(c.Collectors.Shell.HistoryPath)
	c.Collectors.Browser.PlacesPath = ExpandHome(c.Collectors.Browser.PlacesPath)
	c.Metrics.Textfile = ExpandHome(c.Metrics.Textfile)
	for i := range c.Collectors.Git.Repos {
		c.Collectors.Git.Repos[i] = ExpandHome(c.Collectors.Git.Repos[i])
	}
	for i := range c.Collectors.Imports {
		c.Collectors.Imports[i].Path = ExpandHome(c.Collectors.Imports[i].Path)
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Location resolves General.Timezone.
func (c Config) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.General.Timezone); tz {
	case "", "local", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		return loc, nil
	}
}

// ProjectMapper builds the project mapper from projects.mapping.
func (c Config) ProjectMapper() *project.Mapper {
	return project.NewMapper(c.Projects.Mapping)
}

// LoadEnv loads KEY=value secrets from dir/.env without overriding variables
// already set. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// WriteDefault writes a starter config to path, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	c := Default()
	c.Collectors.Git.Authors = []Author{{Email: "you@example.com"}}
	c.Projects.Mapping = Mapping{{Pattern: "example-repo", Project: "Example"}}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
