package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

const (
	defaultLangChainBaseURL = "http://localhost:8080/v1"
	defaultEmbeddingModel   = "BAAI/bge-small-en-v1.5"

	// placeholderToken satisfies langchaingo for local endpoints that ignore auth.
	placeholderToken = "placeholder"
)

// LangChain invokes any OpenAI compatible endpoint through langchaingo.
type LangChain struct {
	model   string
	llm     llms.Model
	limiter *rate.Limiter
}

// NewLangChain creates a langchaingo backed model.
func NewLangChain(cfg Config) (*LangChain, error) {
	client, err := newLangChainClient(cfg, cfg.Model)
	if err != nil {
		return nil, err
	}
	r, b := cfg.rate()
	return &LangChain{
		model:   cfg.Model,
		llm:     client,
		limiter: rate.NewLimiter(rate.Limit(r), b),
	}, nil
}

func newLangChainClient(cfg Config, model string) (*openai.LLM, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLangChainBaseURL
	}
	token := cfg.APIKey
	if token == "" {
		token = placeholderToken
	}
	opts := []openai.Option{
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain client: %w", err)
	}
	return client, nil
}

// Name implements Model.
func (l *LangChain) Name() string { return "langchain/" + l.model }

// Invoke implements Model.
func (l *LangChain) Invoke(ctx context.Context, p Prompt) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	p = p.withDefaults()

	resp, err := l.llm.GenerateContent(ctx, chatMessages(p),
		llms.WithMaxTokens(p.MaxTokens),
		llms.WithTemperature(p.Temperature),
	)
	if err != nil {
		return "", classifyLangChain(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &FatalError{Err: errors.New("empty response")}
	}
	return resp.Choices[0].Content, nil
}

// chatMessages lays out the prompt as an optional system turn and one human turn.
func chatMessages(p Prompt) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, p.System))
	}
	return append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, p.User))
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// classifyLangChain maps langchaingo client errors onto the taxonomy.
// The openai client reports HTTP failures as "... status code: NNN ...".
func classifyLangChain(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return statusError(code, err)
	}
	return &FatalError{Err: err}
}

// NewEmbedder returns a langchaingo embedder for the global knowledge index.
// The result satisfies knowledge.Embedder.
func NewEmbedder(cfg Config) (*embeddings.EmbedderImpl, error) {
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	client, err := newLangChainClient(cfg, model)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}
