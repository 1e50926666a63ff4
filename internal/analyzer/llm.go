package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/hejijunhao/warden/internal/engine/compactor"
	"github.com/hejijunhao/warden/internal/engine/dedup"
	"github.com/hejijunhao/warden/internal/model"
)

// ErrUnknownProvider is returned by NewModel for an unsupported provider.
var ErrUnknownProvider = errors.New("analyzer: unknown model provider")

// DefaultPromptBudget is the estimated token budget for log lines in a prompt.
const DefaultPromptBudget = 6000

// ModelConfig selects and authenticates a chat model.
type ModelConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	Model    string // provider default when empty
	BaseURL  string // openai-compatible endpoints only
}

// NewModel constructs the langchaingo model for cfg.
func NewModel(cfg ModelConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// LLM analyzes logs with a chat model. Entries are collapsed and compacted
// into a prompt that fits the configured budget.
type LLM struct {
	model        llms.Model
	dedup        *dedup.Deduplicator
	compactor    *compactor.Compactor
	promptBudget int
	timeout      time.Duration
	maxTokens    int
}

// Option configures an LLM analyzer.
type Option func(*LLM)

// WithPromptBudget sets the estimated token budget for log lines.
func WithPromptBudget(n int) Option {
	return func(a *LLM) { a.promptBudget = n }
}

// WithVerbosity sets how aggressively messages are compacted.
func WithVerbosity(v compactor.Verbosity) Option {
	return func(a *LLM) { a.compactor = compactor.New(v) }
}

// WithDedupWindow sets the window in which identical lines are collapsed.
func WithDedupWindow(d time.Duration) Option {
	return func(a *LLM) { a.dedup = dedup.New(dedup.Config{Window: d}) }
}

// WithTimeout bounds a single model call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(a *LLM) { a.timeout = d }
}

// WithMaxTokens bounds the length of the model's answer.
func WithMaxTokens(n int) Option {
	return func(a *LLM) { a.maxTokens = n }
}

// New creates an LLM analyzer over m.
func New(m llms.Model, opts ...Option) *LLM {
	a := &LLM{
		model:        m,
		dedup:        dedup.New(dedup.Config{}),
		compactor:    compactor.New(compactor.Standard),
		promptBudget: DefaultPromptBudget,
		maxTokens:    2048,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze implements Analyzer. An empty batch yields a low, non-actionable
// finding without calling the model.
func (a *LLM) Analyze(ctx context.Context, entries []model.LogEntry, target model.Target) (model.Finding, error) {
	if len(entries) == 0 {
		return model.Finding{Severity: model.SeverityLow, Summary: "no log entries"}, nil
	}

	prompt, err := a.buildPrompt(entries, target)
	if err != nil {
		return model.Finding{}, fmt.Errorf("analyzer: formatting prompt: %w", err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, llms.WithJSONMode(), llms.WithTemperature(0), llms.WithMaxTokens(a.maxTokens))
	if err != nil {
		return model.Finding{}, fmt.Errorf("analyzer: calling model: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return model.Finding{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return parseFinding(resp.Choices[0].Content)
}

// Ping sends a minimal prompt to verify credentials.
func (a *LLM) Ping(ctx context.Context) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, a.model, "Reply with OK.", llms.WithMaxTokens(5))
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	return nil
}
