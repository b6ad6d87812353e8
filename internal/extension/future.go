package extension

import (
	"context"

	"github.com/dshills/extload/internal/deferred"
)

// Future is the eventual result of a load. It settles exactly once: with no
// error when the extension is ready, or with an *Error.
type Future struct {
	d   *deferred.Deferred
	req *LoadRequest
}

func newFuture(req *LoadRequest) *Future {
	return &Future{d: deferred.New(), req: req}
}

func (f *Future) resolve() bool {
	return f.d.Resolve(f.req.Descriptor.Name)
}

func (f *Future) reject(err *Error) bool {
	return f.d.Reject(err)
}

// Request returns the request being tracked.
func (f *Future) Request() *LoadRequest {
	return f.req
}

// Done is closed once the load has settled.
func (f *Future) Done() <-chan struct{} {
	return f.d.Done()
}

// Settled reports whether the load has finished.
func (f *Future) Settled() bool {
	return f.d.State() != deferred.Pending
}

// Err returns the load error. It is nil while pending and after success.
func (f *Future) Err() error {
	if f.d.State() != deferred.Rejected {
		return nil
	}
	if err, ok := f.d.Reason().(*Error); ok {
		return err
	}
	return nil
}

// Wait blocks until the load settles or ctx ends, and returns the load error.
// A ctx error is returned as is; the load keeps running.
func (f *Future) Wait(ctx context.Context) error {
	if _, err := f.d.Wait(ctx); err != nil {
		return err
	}
	return f.Err()
}
