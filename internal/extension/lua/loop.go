package lua

import (
	"context"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultQueueSize is the number of jobs a Loop buffers.
const DefaultQueueSize = 64

type job struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Loop serializes all work on a Lua state through a single goroutine.
//
// Usage:
//
//	loop := NewLoop(L, 0, nil)
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	err := loop.Do(ctx, func(L *lua.LState) error {
//	    return L.DoString(`x = 1`)
//	})
type Loop struct {
	L       *lua.LState
	queue   chan *job
	onError func(error)

	closed    atomic.Bool
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a loop for L. onError receives errors from jobs
// submitted with Post; it may be nil.
func NewLoop(L *lua.LState, queueSize int, onError func(error)) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		L:       L,
		queue:   make(chan *job, queueSize),
		onError: onError,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Run processes jobs until ctx is canceled or Close is called.
// It must be the only goroutine touching L.
func (lp *Loop) Run(ctx context.Context) {
	defer close(lp.exited)
	for {
		select {
		case <-ctx.Done():
			lp.drain(ctx.Err())
			return
		case <-lp.done:
			lp.drain(ErrLoopClosed)
			return
		case j := <-lp.queue:
			err := lp.execute(j)
			if j.result != nil {
				j.result <- err
				close(j.result)
			} else if err != nil && lp.onError != nil {
				lp.onError(err)
			}
		}
	}
}

func (lp *Loop) execute(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return j.fn(lp.L)
}

func (lp *Loop) drain(err error) {
	for {
		select {
		case j := <-lp.queue:
			if j.result != nil {
				j.result <- err
				close(j.result)
			}
		default:
			return
		}
	}
}

// Do runs fn on the loop and waits for it. If ctx ends first, Do returns
// ctx.Err() without waiting; fn still runs unless the loop closes.
func (lp *Loop) Do(ctx context.Context, fn func(L *lua.LState) error) error {
	if lp.closed.Load() {
		return ErrLoopClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-lp.done:
		return ErrLoopClosed
	case lp.queue <- j:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-j.result:
		if !ok {
			return ErrLoopClosed
		}
		return err
	}
}

// Post queues fn without waiting. It never blocks, so it is safe to call
// from the loop goroutine itself.
func (lp *Loop) Post(fn func(L *lua.LState) error) error {
	if lp.closed.Load() {
		return ErrLoopClosed
	}

	j := &job{fn: fn}
	select {
	case <-lp.done:
		return ErrLoopClosed
	case lp.queue <- j:
		return nil
	default:
		go func() {
			select {
			case lp.queue <- j:
			case <-lp.done:
			}
		}()
		return nil
	}
}

// Close stops the loop. Queued jobs fail with ErrLoopClosed.
func (lp *Loop) Close() {
	lp.closeOnce.Do(func() {
		lp.closed.Store(true)
		close(lp.done)
	})
}

// Exited is closed when Run has returned.
func (lp *Loop) Exited() <-chan struct{} {
	return lp.exited
}

// IsClosed returns true if the loop has been closed.
func (lp *Loop) IsClosed() bool {
	return lp.closed.Load()
}
