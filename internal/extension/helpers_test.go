package extension

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	hook   InitHook
	closed atomic.Bool
}

func (m *fakeModule) InitHook() InitHook { return m.hook }

func (m *fakeModule) Close() error {
	m.closed.Store(true)
	return nil
}

// hookFetcher returns a fetcher whose module exports hook.
func hookFetcher(hook InitHook) (Fetcher, *fakeModule) {
	mod := &fakeModule{hook: hook}
	return FetcherFunc(func(ctx context.Context, req FetchRequest) (Module, error) {
		return mod, nil
	}), mod
}

func newTestLoader(t *testing.T, f Fetcher, opts ...Option) (*Loader, *MemorySink) {
	t.Helper()
	sink := &MemorySink{}
	l := NewLoader(f, append([]Option{WithSink(sink)}, opts...)...)
	t.Cleanup(func() { _ = l.Close() })
	return l, sink
}

func waitLoad(t *testing.T, fut *Future) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-fut.Done():
	case <-ctx.Done():
		require.FailNow(t, "load did not settle")
	}
	return fut.Err()
}
