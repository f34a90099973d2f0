package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tuannvm/workorder-a2a/internal/config"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// Message roles understood by Complete
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ErrDisabled is returned by the disabled generator for every call
var ErrDisabled = fmt.Errorf("%w: llm is disabled", models.ErrDependencyUnavailable)

// Message is one chat message sent to the model
type Message struct {
	Role    string
	Content string
}

// CompletionOptions tune a single completion call. Zero values use the client defaults.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// TextGenerator is the generative boundary: embeddings and chat completions
type TextGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// Client implements TextGenerator using langchaingo
type Client struct {
	llm         llms.Model
	embedder    embeddings.Embedder
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewClient creates a new LLM client based on the provided configuration.
// When the LLM is disabled a generator that always fails is returned.
func NewClient(cfg *config.Config) (TextGenerator, error) {
	if !cfg.LLMEnabled {
		log.Warnf("LLM disabled; generation will use baseline work orders")
		return Disabled{}, nil
	}

	opts := []openai.Option{
		openai.WithToken(cfg.LLMAPIKey),
		openai.WithModel(cfg.LLMModel),
		openai.WithEmbeddingModel(cfg.LLMEmbeddingModel),
	}

	// Select LLM provider based on configuration
	switch cfg.LLMProvider {
	case "openai":
		if cfg.LLMServiceURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMServiceURL))
		}
	case "azure":
		if cfg.LLMServiceURL == "" {
			return nil, fmt.Errorf("%w: llm.service_url is required for azure", models.ErrDependencyUnavailable)
		}
		opts = append(opts, openai.WithBaseURL(cfg.LLMServiceURL))
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", models.ErrDependencyUnavailable, cfg.LLMProvider)
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Client{
		llm:         model,
		embedder:    embedder,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
		timeout:     time.Duration(cfg.LLMTimeout) * time.Second,
	}, nil
}

// Embed returns the embedding vector of a query text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding failed: %v", models.ErrTransport, err)
	}
	return vec, nil
}

// EmbedDocuments embeds a batch of document texts
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vecs, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: document embedding failed: %v", models.ErrTransport, err)
	}
	return vecs, nil
}

// Complete sends a chat conversation to the LLM and returns the first choice
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if c.llm == nil {
		return "", errors.New("LLM client not initialized")
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, m.Content))
		log.Debugf("Sending %s message to LLM: %s", m.Role, truncateForLogging(m.Content))
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		// keep the context error visible so callers can tell timeouts apart
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("LLM generation failed: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: LLM generation failed: %v", models.ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	completion := resp.Choices[0].Content
	log.Infof("Received response from LLM: %s", truncateForLogging(completion))
	return completion, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Disabled is the generator used when no model is configured
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) { return nil, ErrDisabled }

func (Disabled) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrDisabled
}

func (Disabled) Complete(context.Context, []Message, CompletionOptions) (string, error) {
	return "", ErrDisabled
}

// truncateForLogging truncates a string to a reasonable length for logging
func truncateForLogging(s string) string {
	const maxLength = 500
	s = strings.TrimSpace(s)
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "... [truncated]"
}
