package extension

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/dshills/extload/internal/deferred"
)

// DefaultInitTimeout is the budget an init hook gets when none is configured.
const DefaultInitTimeout = 10 * time.Second

// InitHook is an extension's initialization entry point. It receives a
// context that ends when the budget runs out and returns one of:
//
//   - nil, or any value not listed below: success
//   - Failure or *Failure: explicit failure, with or without a reason
//   - an error value: explicit failure with the error text as reason
//   - *deferred.Deferred or <-chan error: asynchronous completion
//
// A non-nil error return, or a panic, is a thrown error.
type InitHook func(ctx context.Context) (any, error)

// Supervisor runs init hooks under a time budget and classifies the outcome.
type Supervisor struct {
	budget func() time.Duration
	logger *zap.Logger
}

// NewSupervisor creates a supervisor. budget is consulted once per run.
func NewSupervisor(budget func() time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget == nil {
		budget = func() time.Duration { return DefaultInitTimeout }
	}
	return &Supervisor{budget: budget, logger: logger}
}

// Run invokes hook and waits for it to complete, fail, or exceed the budget.
// The budget covers the synchronous call and any asynchronous completion.
// Once Run returns, later settlement of the hook is ignored.
func (s *Supervisor) Run(parent context.Context, hook InitHook) InitOutcome {
	budget := s.budget()
	if budget <= 0 {
		budget = DefaultInitTimeout
	}
	ctx, cancel := context.WithTimeout(parent, budget)
	defer cancel()

	start := time.Now()
	value, err := invoke(ctx, hook)
	if err != nil {
		if ctx.Err() != nil {
			return expired(parent)
		}
		return thrown(err)
	}

	outcome := s.await(ctx, parent, value)
	s.logger.Debug("init hook finished",
		zap.Stringer("outcome", outcome.Kind),
		zap.Duration("elapsed", time.Since(start)),
		zap.Duration("budget", budget),
	)
	return outcome
}

func (s *Supervisor) await(ctx, parent context.Context, value any) InitOutcome {
	switch v := value.(type) {
	case *deferred.Deferred:
		if v == nil {
			return InitOutcome{Kind: OutcomeSuccess}
		}
		select {
		case <-v.Done():
			return settled(v)
		case <-ctx.Done():
			return expired(parent)
		}
	case <-chan error:
		if v == nil {
			return InitOutcome{Kind: OutcomeSuccess}
		}
		select {
		case err, ok := <-v:
			if !ok || err == nil {
				return InitOutcome{Kind: OutcomeSuccess}
			}
			return failure(err)
		case <-ctx.Done():
			return expired(parent)
		}
	default:
		return immediate(value)
	}
}

// invoke calls hook, converting a panic into a thrown error.
func invoke(ctx context.Context, hook InitHook) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &ThrownError{Type: "GoPanic", Message: fmt.Sprint(r)}
		}
	}()
	return hook(ctx)
}

// immediate classifies a synchronous return value.
func immediate(value any) InitOutcome {
	switch v := value.(type) {
	case nil:
		return InitOutcome{Kind: OutcomeSuccess}
	case Failure:
		return failure(v)
	case *Failure:
		if v == nil {
			return InitOutcome{Kind: OutcomeSuccess}
		}
		return failure(*v)
	case error:
		return failure(v)
	default:
		return InitOutcome{Kind: OutcomeSuccess}
	}
}

func settled(d *deferred.Deferred) InitOutcome {
	if d.State() == deferred.Resolved {
		return InitOutcome{Kind: OutcomeSuccess}
	}
	return failure(d.Reason())
}

// failure builds a failure outcome from a rejection reason.
func failure(reason any) InitOutcome {
	text := reasonText(reason)
	if text == "" {
		return InitOutcome{Kind: OutcomeFailureNoReason}
	}
	return InitOutcome{Kind: OutcomeFailureWithReason, Reason: text}
}

func reasonText(reason any) string {
	switch r := reason.(type) {
	case nil:
		return ""
	case string:
		return r
	case Failure:
		return r.Reason
	case *Failure:
		if r == nil {
			return ""
		}
		return r.Reason
	case error:
		return r.Error()
	case fmt.Stringer:
		return r.String()
	default:
		return fmt.Sprint(r)
	}
}

func thrown(err error) InitOutcome {
	var te *ThrownError
	if !errors.As(err, &te) {
		te = &ThrownError{Type: errorTypeName(err), Message: err.Error()}
	}
	return InitOutcome{Kind: OutcomeThrown, Reason: te.Error(), Err: err}
}

// expired distinguishes the caller giving up from the budget running out.
func expired(parent context.Context) InitOutcome {
	if err := parent.Err(); err != nil {
		return InitOutcome{Kind: OutcomeCanceled, Err: context.Cause(parent)}
	}
	return InitOutcome{Kind: OutcomeTimeout, Err: context.DeadlineExceeded}
}

// errorTypeName names an error by its exported Go type, or "Error".
func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		return "Error"
	}
	return name
}
