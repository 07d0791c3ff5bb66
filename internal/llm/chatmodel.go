package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"codeqa/internal/domain"
)

const (
	DefaultOpenAIBaseURL = "https://api.x.ai/v1"
	DefaultOpenAIModel   = "grok-4-1-fast-reasoning"
	DefaultClaudeModel   = "claude-sonnet-4-5"
	DefaultTemperature   = 0.2
	defaultMaxTokens     = 4096
)

// generator is the part of an eino chat model the completer needs.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatModelCompleter adapts an eino chat model to domain.Completer.
type ChatModelCompleter struct {
	name  string
	model generator
}

func newChatModelCompleter(name string, g generator) *ChatModelCompleter {
	return &ChatModelCompleter{name: name, model: g}
}

// ChatModelOptions configures the eino-backed providers.
type ChatModelOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewOpenAICompleter talks to any OpenAI-compatible chat completions API,
// xAI by default.
func NewOpenAICompleter(ctx context.Context, opts ChatModelOptions) (*ChatModelCompleter, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	temp := opts.Temperature
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      opts.APIKey,
		BaseURL:     opts.BaseURL,
		Model:       opts.Model,
		Temperature: &temp,
		Timeout:     opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return newChatModelCompleter("openai:"+opts.Model, cm), nil
}

// NewClaudeCompleter talks to the Anthropic messages API.
func NewClaudeCompleter(ctx context.Context, opts ChatModelOptions) (*ChatModelCompleter, error) {
	if opts.Model == "" {
		opts.Model = DefaultClaudeModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	temp := opts.Temperature
	cfg := &claude.Config{
		APIKey:      opts.APIKey,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: &temp,
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = &opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newChatModelCompleter("claude:"+opts.Model, cm), nil
}

// Name identifies the provider and model in logs.
func (c *ChatModelCompleter) Name() string { return c.name }

// Complete implements domain.Completer.
func (c *ChatModelCompleter) Complete(ctx context.Context, h domain.History) (string, error) {
	msg, err := c.model.Generate(ctx, toSchema(h))
	if err != nil {
		return "", wrapProviderError(c.name, err)
	}
	if msg == nil {
		return "", &ProviderError{Provider: c.name, Kind: KindUnknown, Err: errors.New("empty response")}
	}
	return msg.Content, nil
}

func toSchema(h domain.History) []*schema.Message {
	out := make([]*schema.Message, 0, len(h))
	for _, m := range h {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
