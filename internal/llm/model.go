package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/proposald/internal/config"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 2048
	defaultTemperature      = 0.3
	defaultTimeout          = 60 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Prompt is one model request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

func (p Prompt) withDefaults() Prompt {
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = defaultTemperature
	}
	p.System = scrubSecrets(p.System)
	p.User = scrubSecrets(p.User)
	return p
}

// Model invokes a language model.
type Model interface {
	// Name identifies the provider and model, e.g. "anthropic/claude-3-5-sonnet".
	Name() string

	// Invoke returns the completion text, or a *TransientError / *FatalError.
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// Config holds provider settings.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	RateLimit float64
	Burst     int
	Timeout   time.Duration
}

// ConfigFromSettings maps the llm section of the daemon config.
func ConfigFromSettings(s config.LLMConfig) Config {
	return Config{
		Provider:  s.Provider,
		Model:     s.Model,
		BaseURL:   s.BaseURL,
		APIKey:    s.APIKey.Value(),
		RateLimit: s.RateLimit,
		Burst:     s.Burst,
		Timeout:   s.Timeout.Duration(),
	}
}

// New creates the configured model. The heuristic provider returns (nil, nil).
func New(cfg Config) (Model, error) {
	switch cfg.Provider {
	case "", "heuristic":
		return nil, nil
	case "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	case "langchain":
		return NewLangChain(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) rate() (float64, int) {
	r, b := c.RateLimit, c.Burst
	if r <= 0 {
		r = defaultRateLimit
	}
	if b <= 0 {
		b = defaultBurst
	}
	return r, b
}

var secretPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|GITLAB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`), "$1=[REDACTED:ENV_SECRET]"},
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`), "[REDACTED:ANTHROPIC_KEY]"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[REDACTED:OPENAI_KEY]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`), "$1=[REDACTED:API_KEY]"},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`), "[REDACTED:BEARER_TOKEN]"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`), "$1=[REDACTED:PASSWORD]"},
	{regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "[REDACTED:PRIVATE_KEY]"},
}

// scrubSecrets removes credential shaped strings before a prompt leaves the process.
func scrubSecrets(content string) string {
	for _, p := range secretPatterns {
		content = p.regex.ReplaceAllString(content, p.replacement)
	}
	return content
}

// truncate shortens an error body for messages.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
