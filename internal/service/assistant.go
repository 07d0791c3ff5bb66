// Package service runs question/answer turns against stored conversations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"codeqa/internal/conversation"
	"codeqa/internal/delivery"
	"codeqa/internal/domain"
)

const (
	DefaultMaxConcurrentTurns = 4
	DefaultTurnTimeout        = 120 * time.Second
)

// ErrEmptyQuery is returned for blank questions; no turn is run.
var ErrEmptyQuery = errors.New("empty query")

// Options configure an Assistant. Zero values take the defaults.
type Options struct {
	MaxConcurrentTurns int
	TurnTimeout        time.Duration
	// MessageLimit is the delivery chunk size for Reply.Chunks.
	MessageLimit int
}

// Reply is what a transport needs to present one answered question.
type Reply struct {
	Text            string
	Chunks          []string
	Trimmed         bool
	NewConversation bool
}

// Assistant owns the session lifecycle: it loads (or starts) a history, runs
// one turn and stores the turn's messages only when the turn succeeded.
type Assistant struct {
	machine   *conversation.Machine
	retriever domain.CodeRetriever
	completer domain.Completer
	sessions  domain.SessionStore
	log       *zap.Logger

	limit   int
	timeout time.Duration
	sem     *semaphore.Weighted
	locks   keyedMutex
}

func NewAssistant(machine *conversation.Machine, retriever domain.CodeRetriever, completer domain.Completer, sessions domain.SessionStore, opts Options, log *zap.Logger) *Assistant {
	if opts.MaxConcurrentTurns <= 0 {
		opts.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = delivery.DefaultLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{
		machine:   machine,
		retriever: retriever,
		completer: completer,
		sessions:  sessions,
		log:       log,
		limit:     opts.MessageLimit,
		timeout:   opts.TurnTimeout,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrentTurns)),
	}
}

// Ask answers query within the conversation identified by key. Turns of the
// same key run one at a time.
func (a *Assistant) Ask(ctx context.Context, key, query string) (Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}

	unlock := a.locks.lock(key)
	defer unlock()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Reply{}, err
	}
	defer a.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	history, found, err := a.sessions.Load(ctx, key)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		// first contact is recorded even if the turn fails, so a retry
		// continues the same conversation
		history = a.machine.InitialHistory()
		if err := a.sessions.Save(ctx, key, history); err != nil {
			return Reply{}, fmt.Errorf("save session: %w", err)
		}
	}

	start := time.Now()
	turn, err := a.machine.ProcessTurn(ctx, history, query, a.retriever, a.completer)
	if err != nil {
		return Reply{NewConversation: !found}, err
	}
	if err := a.sessions.Save(ctx, key, turn.History); err != nil {
		return Reply{NewConversation: !found}, fmt.Errorf("save session: %w", err)
	}
	a.log.Debug("turn complete",
		zap.String("session", key),
		zap.Int("history_len", len(turn.History)),
		zap.Bool("trimmed", turn.Trimmed),
		zap.Duration("elapsed", time.Since(start)))

	return Reply{
		Text:            turn.Response,
		Chunks:          delivery.Segment(turn.Response, a.limit),
		Trimmed:         turn.Trimmed,
		NewConversation: !found,
	}, nil
}

// Clear forgets the conversation for key and reports whether one existed.
func (a *Assistant) Clear(ctx context.Context, key string) (bool, error) {
	unlock := a.locks.lock(key)
	defer unlock()
	existed, err := a.sessions.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("clear session: %w", err)
	}
	return existed, nil
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
