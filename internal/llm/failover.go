package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codeqa/internal/domain"
)

// Outcome is the coarse result of one provider attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// OutcomeFor maps a failure kind onto whether another provider may help.
func OutcomeFor(kind ErrorKind) Outcome {
	switch kind {
	case KindRateLimit, KindTimeout, KindConnection, KindServer:
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}

// Result is what one attempt against one provider produced.
type Result struct {
	Outcome  Outcome
	Kind     ErrorKind
	Provider string
	Text     string
	Err      error
}

// State is a step of the failover state machine.
type State int

const (
	StateTryPrimary State = iota
	StateTrySecondary
	StateSuccess
	StateFail
)

func (s State) String() string {
	switch s {
	case StateTryPrimary:
		return "try_primary"
	case StateTrySecondary:
		return "try_secondary"
	case StateSuccess:
		return "success"
	default:
		return "fail"
	}
}

// Next returns the state following an attempt made in state s. The
// secondary is tried at most once and only after a transient primary
// failure.
func Next(s State, o Outcome, hasSecondary bool) State {
	if o == OutcomeSuccess {
		return StateSuccess
	}
	if s == StateTryPrimary && o == OutcomeTransient && hasSecondary {
		return StateTrySecondary
	}
	return StateFail
}

// Provider is a named completer. A positive Timeout bounds each attempt
// against it, leaving the rest of the caller's deadline to the secondary.
type Provider struct {
	Name      string
	Completer domain.Completer
	Timeout   time.Duration
}

// Failover sends a history to the primary provider and, on a transient
// failure, to the secondary exactly once.
type Failover struct {
	primary   Provider
	secondary *Provider
	log       *zap.Logger
}

// NewFailover builds a gateway. secondary may be nil.
func NewFailover(primary Provider, secondary *Provider, log *zap.Logger) *Failover {
	if log == nil {
		log = zap.NewNop()
	}
	return &Failover{primary: primary, secondary: secondary, log: log}
}

// Attempt runs the primary provider once.
func (f *Failover) Attempt(ctx context.Context, h domain.History) Result {
	return f.attempt(ctx, f.primary, h)
}

func (f *Failover) attempt(ctx context.Context, p Provider, h domain.History) Result {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	text, err := p.Completer.Complete(ctx, h)
	if err == nil {
		return Result{Outcome: OutcomeSuccess, Provider: p.Name, Text: text}
	}
	kind := Classify(err)
	if kind == KindUnknown {
		f.log.Warn("unclassified provider error",
			zap.String("provider", p.Name),
			zap.String("type", unwrapType(err)),
			zap.Error(err))
	}
	return Result{Outcome: OutcomeFor(kind), Kind: kind, Provider: p.Name, Err: err}
}

// Complete implements domain.Completer.
func (f *Failover) Complete(ctx context.Context, h domain.History) (string, error) {
	state := StateTryPrimary
	var res Result
	for {
		switch state {
		case StateTryPrimary:
			res = f.attempt(ctx, f.primary, h)
		case StateTrySecondary:
			if ctx.Err() != nil {
				// the caller's own deadline is gone; the secondary cannot finish either
				return "", res.Err
			}
			f.log.Warn("primary provider failed, trying secondary",
				zap.String("primary", f.primary.Name),
				zap.String("secondary", f.secondary.Name),
				zap.Stringer("kind", res.Kind),
				zap.Error(res.Err))
			res = f.attempt(ctx, *f.secondary, h)
		case StateSuccess:
			return res.Text, nil
		case StateFail:
			return "", res.Err
		}
		state = Next(state, res.Outcome, f.secondary != nil)
	}
}

// unwrapType reports the concrete type of the innermost wrapped error.
func unwrapType(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return fmt.Sprintf("%T", err)
		}
		err = inner
	}
}
