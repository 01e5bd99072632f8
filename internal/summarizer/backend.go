package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/pbaille/timeline/internal/config"
)

// Backend turns a system prompt and a user prompt into completion text.
type Backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Backend names accepted in summarizer.backend.
const (
	BackendClaudeCLI = "claude-cli"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// NewBackend builds the configured backend. API backends need their key in
// the environment.
func NewBackend(cfg config.SummarizerConfig) (Backend, error) {
	switch cfg.Backend {
	case "", BackendClaudeCLI:
		return &ClaudeCLI{Command: cfg.Command, Model: cfg.Model}, nil
	case BackendAnthropic:
		key, err := apiKey(cfg.APIKeyEnv, "ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return &Anthropic{
			APIKey:    key,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Client:    &http.Client{Timeout: cfg.Timeout},
		}, nil
	case BackendOpenAI:
		key, err := apiKey(cfg.APIKeyEnv, "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return &OpenAI{
			APIKey:    key,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Client:    &http.Client{Timeout: cfg.Timeout},
		}, nil
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", cfg.Backend)
	}
}

func apiKey(envName, fallback string) (string, error) {
	if envName == "" {
		envName = fallback
	}
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", envName)
	}
	return key, nil
}

// ClaudeCLI runs the claude CLI non-interactively with the prompt on stdin.
type ClaudeCLI struct {
	Command string
	Model   string
}

func (c *ClaudeCLI) Complete(ctx context.Context, system, prompt string) (string, error) {
	command := c.Command
	if command == "" {
		command = "claude"
	}
	args := []string{"-p", "--system-prompt", system, "--tools", "", "--no-session-persistence"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", command, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = strings.TrimSpace(stdout.String())
			}
			if detail == "" {
				detail = "(no output)"
			}
			return "", fmt.Errorf("%s exited %d: %s", command, exitErr.ExitCode(), detail)
		}
		return "", fmt.Errorf("run %s: %w", command, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

const (
	anthropicAPI     = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	anthropicModel   = "claude-sonnet-4-20250514"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Client    *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	model := a.Model
	if model == "" {
		model = anthropicModel
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens(a.MaxTokens),
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(a.BaseURL, anthropicAPI)+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	respBody, err := do(httpClient(a.Client), req)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", resp.Error.Message)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

const (
	openAIAPI   = "https://api.openai.com/v1"
	openAIModel = "gpt-4o"
)

// OpenAI calls a chat-completions compatible endpoint.
type OpenAI struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Client    *http.Client
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	model := o.Model
	if model == "" {
		model = openAIModel
	}
	body, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		"max_tokens": maxTokens(o.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(o.BaseURL, openAIAPI)+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	respBody, err := do(httpClient(o.Client), req)
	if err != nil {
		return "", err
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func baseURL(configured, def string) string {
	if configured == "" {
		return def
	}
	return strings.TrimRight(configured, "/")
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: 2 * time.Minute}
	}
	return c
}

func maxTokens(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}
