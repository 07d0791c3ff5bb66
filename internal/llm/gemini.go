package llm

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"codeqa/internal/domain"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiCompleter implements domain.Completer over the Gemini API.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiCompleter(ctx context.Context, opts ChatModelOptions) (*GeminiCompleter, error) {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.Timeout > 0 {
		cc.HTTPOptions.Timeout = genai.Ptr(opts.Timeout)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiCompleter{client: client, model: opts.Model, temperature: opts.Temperature}, nil
}

func (g *GeminiCompleter) Name() string { return "gemini:" + g.model }

// Complete implements domain.Completer. The system message becomes the
// system instruction; remaining turns map to user/model contents.
func (g *GeminiCompleter) Complete(ctx context.Context, h domain.History) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	contents := make([]*genai.Content, 0, len(h))
	var system []string
	for _, m := range h {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", wrapProviderError(g.Name(), err)
	}
	text := resp.Text()
	if text == "" {
		return "", &ProviderError{Provider: g.Name(), Kind: KindUnknown, Err: errors.New("empty response")}
	}
	return text, nil
}
