package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"codeqa/internal/config"
	"codeqa/internal/domain"
)

// NewFromConfig builds the failover gateway described by cfg. Every
// configuration problem is reported here, before any request is sent.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (*Failover, error) {
	primary, err := newProvider(ctx, cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	var secondary *Provider
	if cfg.Secondary != nil {
		if cfg.Secondary.Provider == "" {
			return nil, fmt.Errorf("%w: secondary configured without a provider", ErrConfig)
		}
		p, err := newProvider(ctx, *cfg.Secondary)
		if err != nil {
			return nil, fmt.Errorf("secondary: %w", err)
		}
		secondary = &p
	}
	return NewFailover(primary, secondary, log), nil
}

func newProvider(ctx context.Context, pc config.ProviderConfig) (Provider, error) {
	if pc.APIKeyEnv == "" {
		return Provider{}, fmt.Errorf("%w: %s: api_key_env not set", ErrConfig, pc.Provider)
	}
	key := os.Getenv(pc.APIKeyEnv)
	if key == "" {
		return Provider{}, fmt.Errorf("%w: missing API key in env %s", ErrConfig, pc.APIKeyEnv)
	}
	opts := ChatModelOptions{
		APIKey:      key,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: DefaultTemperature,
		MaxTokens:   pc.MaxTokens,
		Timeout:     time.Duration(pc.TimeoutSecs) * time.Second,
	}
	if pc.Temperature != nil {
		opts.Temperature = *pc.Temperature
	}

	var (
		c    domain.Completer
		name string
		err  error
	)
	switch pc.Provider {
	case "openai", "xai", "":
		var cm *ChatModelCompleter
		cm, err = NewOpenAICompleter(ctx, opts)
		if cm != nil {
			c, name = cm, cm.Name()
		}
	case "claude", "anthropic":
		var cm *ChatModelCompleter
		cm, err = NewClaudeCompleter(ctx, opts)
		if cm != nil {
			c, name = cm, cm.Name()
		}
	case "gemini":
		var g *GeminiCompleter
		g, err = NewGeminiCompleter(ctx, opts)
		if g != nil {
			c, name = g, g.Name()
		}
	default:
		return Provider{}, fmt.Errorf("%w: unknown provider %q", ErrConfig, pc.Provider)
	}
	if err != nil {
		return Provider{}, fmt.Errorf("%w: %s: %v", ErrConfig, pc.Provider, err)
	}
	return Provider{Name: name, Completer: c, Timeout: opts.Timeout}, nil
}
