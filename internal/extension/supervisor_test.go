package extension

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/dshills/extload/internal/deferred"
)

func fixedBudget(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

func TestSupervisorImmediate(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		err    error
		kind   OutcomeKind
		reason string
	}{
		{"nil", nil, nil, OutcomeSuccess, ""},
		{"true", true, nil, OutcomeSuccess, ""},
		{"table", map[string]any{"ok": 1}, nil, OutcomeSuccess, ""},
		{"fail no reason", Failure{}, nil, OutcomeFailureNoReason, ""},
		{"fail reason", Fail("bad config"), nil, OutcomeFailureWithReason, "bad config"},
		{"fail pointer", &Failure{Reason: "ptr"}, nil, OutcomeFailureWithReason, "ptr"},
		{"error value", errors.New("sentinel"), nil, OutcomeFailureWithReason, "sentinel"},
		{"thrown plain", nil, errors.New("boom"), OutcomeThrown, "Error: boom"},
		{"thrown typed", nil, &ThrownError{Type: "TypeError", Message: "x is nil"}, OutcomeThrown, "TypeError: x is nil"},
		{"thrown exported type", nil, &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, OutcomeThrown, "PathError: open /x: file does not exist"},
		{"resolved deferred", deferred.NewResolved(nil), nil, OutcomeSuccess, ""},
		{"rejected deferred", deferred.NewRejected("nope"), nil, OutcomeFailureWithReason, "nope"},
		{"rejected deferred no reason", deferred.NewRejected(nil), nil, OutcomeFailureNoReason, ""},
	}

	s := NewSupervisor(fixedBudget(time.Second), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Run(context.Background(), func(context.Context) (any, error) {
				return tt.value, tt.err
			})
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestSupervisorPanic(t *testing.T) {
	s := NewSupervisor(fixedBudget(time.Second), nil)
	got := s.Run(context.Background(), func(context.Context) (any, error) {
		panic("kaboom")
	})
	assert.Equal(t, OutcomeThrown, got.Kind)
	assert.Equal(t, "GoPanic: kaboom", got.Reason)
}

func TestSupervisorAsyncResolve(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(fixedBudget(time.Second), nil)
	got := s.Run(context.Background(), func(context.Context) (any, error) {
		d := deferred.New()
		time.AfterFunc(20*time.Millisecond, func() { d.Resolve(nil) })
		return d, nil
	})
	assert.Equal(t, OutcomeSuccess, got.Kind)
}

func TestSupervisorAsyncReject(t *testing.T) {
	s := NewSupervisor(fixedBudget(time.Second), nil)
	got := s.Run(context.Background(), func(context.Context) (any, error) {
		d := deferred.New()
		time.AfterFunc(20*time.Millisecond, func() { d.Reject("late failure") })
		return d, nil
	})
	assert.Equal(t, OutcomeFailureWithReason, got.Kind)
	assert.Equal(t, "late failure", got.Reason)
}

func TestSupervisorChannel(t *testing.T) {
	s := NewSupervisor(fixedBudget(time.Second), nil)

	ok := s.Run(context.Background(), func(context.Context) (any, error) {
		ch := make(chan error, 1)
		ch <- nil
		return (<-chan error)(ch), nil
	})
	assert.Equal(t, OutcomeSuccess, ok.Kind)

	failed := s.Run(context.Background(), func(context.Context) (any, error) {
		ch := make(chan error, 1)
		ch <- errors.New("disk full")
		return (<-chan error)(ch), nil
	})
	assert.Equal(t, OutcomeFailureWithReason, failed.Kind)
	assert.Equal(t, "disk full", failed.Reason)
}

func TestSupervisorTimeoutAsync(t *testing.T) {
	d := deferred.New()
	s := NewSupervisor(fixedBudget(50*time.Millisecond), nil)

	start := time.Now()
	got := s.Run(context.Background(), func(context.Context) (any, error) {
		return d, nil
	})
	assert.Equal(t, OutcomeTimeout, got.Kind)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Settling after the deadline changes nothing already reported.
	d.Resolve(nil)
	assert.Equal(t, OutcomeTimeout, got.Kind)
}

func TestSupervisorTimeoutSync(t *testing.T) {
	s := NewSupervisor(fixedBudget(30*time.Millisecond), nil)
	got := s.Run(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.Equal(t, OutcomeTimeout, got.Kind)
}

func TestSupervisorParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSupervisor(fixedBudget(time.Second), nil)

	got := s.Run(ctx, func(context.Context) (any, error) {
		d := deferred.New()
		time.AfterFunc(10*time.Millisecond, cancel)
		return d, nil
	})
	assert.Equal(t, OutcomeCanceled, got.Kind)
	assert.ErrorIs(t, got.Err, context.Canceled)
}

func TestSupervisorBudgetSnapshot(t *testing.T) {
	budget := 40 * time.Millisecond
	s := NewSupervisor(func() time.Duration { return budget }, nil)

	got := s.Run(context.Background(), func(context.Context) (any, error) {
		budget = time.Hour
		return deferred.New(), nil
	})
	assert.Equal(t, OutcomeTimeout, got.Kind)
}

func TestFailureReasonProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reason := rapid.String().Draw(t, "reason")
		got := failure(reason)
		if reason == "" {
			assert.Equal(t, OutcomeFailureNoReason, got.Kind)
			return
		}
		assert.Equal(t, OutcomeFailureWithReason, got.Kind)
		assert.Equal(t, reason, got.Reason)
	})
}
