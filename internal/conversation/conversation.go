// Package conversation holds the per-turn state machine: history growth,
// retrieval depth by conversation stage, and positional trimming.
package conversation

import (
	"context"
	"fmt"

	"codeqa/internal/domain"
)

const (
	DefaultMaxHistory   = 12
	DefaultKeepLast     = 8
	DefaultInitialTopK  = 50
	DefaultFollowUpTopK = 10
)

// Config bounds the conversation memory and retrieval depth.
type Config struct {
	SystemPrompt string
	MaxHistory   int
	KeepLast     int
	InitialTopK  int
	FollowUpTopK int
}

// Turn is the outcome of one successful question/answer exchange.
type Turn struct {
	Response string
	History  domain.History
	Trimmed  bool
}

// Machine applies Config to histories. It holds no per-conversation state;
// callers own each History and must serialize turns of one conversation.
type Machine struct {
	cfg Config
}

func New(cfg Config) *Machine {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = DefaultKeepLast
	}
	if cfg.InitialTopK <= 0 {
		cfg.InitialTopK = DefaultInitialTopK
	}
	if cfg.FollowUpTopK <= 0 {
		cfg.FollowUpTopK = DefaultFollowUpTopK
	}
	return &Machine{cfg: cfg}
}

// InitialHistory returns a fresh history holding only the system prompt.
func (m *Machine) InitialHistory() domain.History {
	return domain.History{{Role: domain.RoleSystem, Content: m.cfg.SystemPrompt}}
}

// RetrievalDepth asks for broader recall on the opening turn, when there is
// no prior context to disambiguate the question.
func (m *Machine) RetrievalDepth(h domain.History) int {
	if len(h) == 1 {
		return m.cfg.InitialTopK
	}
	return m.cfg.FollowUpTopK
}

// Advance runs one completion over h extended with the question. h itself is
// never modified, so a failed completion leaves the caller's history intact.
func (m *Machine) Advance(ctx context.Context, h domain.History, query, codeContext string, completer domain.Completer) (Turn, error) {
	provisional := make(domain.History, len(h), len(h)+2)
	copy(provisional, h)
	provisional = append(provisional, domain.Message{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("Relevant code context:\n%s\n\nQuestion: %s", codeContext, query),
	})

	response, err := completer.Complete(ctx, provisional)
	if err != nil {
		return Turn{}, err
	}

	next := append(provisional, domain.Message{Role: domain.RoleAssistant, Content: response})
	trimmed := len(next) > m.cfg.MaxHistory
	if trimmed {
		next = m.trim(next)
	}
	return Turn{Response: response, History: next, Trimmed: trimmed}, nil
}

// ProcessTurn retrieves context at the stage-appropriate depth and advances.
func (m *Machine) ProcessTurn(ctx context.Context, h domain.History, query string, retriever domain.CodeRetriever, completer domain.Completer) (Turn, error) {
	codeContext, err := retriever.Retrieve(ctx, query, m.RetrievalDepth(h))
	if err != nil {
		return Turn{}, fmt.Errorf("retrieve context: %w", err)
	}
	return m.Advance(ctx, h, query, codeContext, completer)
}

// trim keeps the system message plus the KeepLast most recent messages.
func (m *Machine) trim(h domain.History) domain.History {
	keep := m.cfg.KeepLast
	if keep > len(h)-1 {
		keep = len(h) - 1
	}
	out := make(domain.History, 0, keep+1)
	out = append(out, h[0])
	return append(out, h[len(h)-keep:]...)
}
