// Package deferred provides a settle-once future.
//
// A Deferred starts pending and settles exactly once, either resolved with a
// value or rejected with a reason. Later settlement attempts are ignored and
// report false, so racing producers can call Resolve/Reject freely.
package deferred

import (
	"context"
	"sync"
)

// State is the settlement state of a Deferred.
type State int

// Deferred states.
const (
	Pending State = iota
	Resolved
	Rejected
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Deferred is a value that settles exactly once.
type Deferred struct {
	mu     sync.Mutex
	state  State
	value  any
	reason any
	done   chan struct{}

	callbacks []func(*Deferred)
}

// New creates a pending Deferred.
func New() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// NewResolved returns a Deferred already resolved with v.
func NewResolved(v any) *Deferred {
	d := New()
	d.Resolve(v)
	return d
}

// NewRejected returns a Deferred already rejected with reason.
func NewRejected(reason any) *Deferred {
	d := New()
	d.Reject(reason)
	return d
}

// Resolve settles the Deferred successfully.
// Returns false if it was already settled.
func (d *Deferred) Resolve(v any) bool {
	return d.settle(Resolved, v, nil)
}

// Reject settles the Deferred with a failure reason. A nil reason means the
// failure carries no reason.
// Returns false if it was already settled.
func (d *Deferred) Reject(reason any) bool {
	return d.settle(Rejected, nil, reason)
}

func (d *Deferred) settle(state State, value, reason any) bool {
	d.mu.Lock()
	if d.state != Pending {
		d.mu.Unlock()
		return false
	}
	d.state = state
	d.value = value
	d.reason = reason
	callbacks := d.callbacks
	d.callbacks = nil
	close(d.done)
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn(d)
	}
	return true
}

// Then registers fn to run once the Deferred settles. If it has already
// settled, fn runs immediately on the calling goroutine; otherwise it runs on
// the goroutine that settles it.
func (d *Deferred) Then(fn func(*Deferred)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.state == Pending {
		d.callbacks = append(d.callbacks, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn(d)
}

// Done returns a channel that is closed when the Deferred settles.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// State returns the current settlement state.
func (d *Deferred) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Value returns the resolution value, or nil.
func (d *Deferred) Value() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Reason returns the rejection reason, or nil.
func (d *Deferred) Reason() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// Wait blocks until the Deferred settles or ctx is done.
// It returns the final state, or ctx.Err() if the context finished first.
func (d *Deferred) Wait(ctx context.Context) (State, error) {
	select {
	case <-d.done:
		return d.State(), nil
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}
