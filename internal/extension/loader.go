package extension

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/extload/internal/modconfig"
)

// FetchRequest is what a Fetcher needs to resolve and execute an
// extension's main module.
type FetchRequest struct {
	Name       string
	BaseURL    string
	BaseDir    string
	MainModule string
	Resolution *modconfig.Context
	Logger     *zap.Logger
}

// Fetcher resolves and executes an extension's main module, including its
// transitive dependencies.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Module, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (Module, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (Module, error) {
	return f(ctx, req)
}

// Module is an executed main module.
type Module interface {
	// InitHook returns the module's init hook, or nil if it exports none.
	InitHook() InitHook

	// Close releases the module's runtime. Pending asynchronous work is
	// abandoned.
	Close() error
}

// Config is the per-extension configuration accepted by LoadExtension.
type Config struct {
	BaseURL string
}

// Result pairs a descriptor with the outcome of its load.
type Result struct {
	Descriptor Descriptor
	RequestID  string
	Err        error
}

// Loader loads extensions: it merges module configuration, fetches the main
// module, and supervises the init hook. It is safe for concurrent use;
// loads of different extensions are fully independent.
type Loader struct {
	fetcher    Fetcher
	registry   *modconfig.Registry
	sink       Sink
	logger     *zap.Logger
	supervisor *Supervisor

	initTimeout atomic.Int64
	concurrency int

	mu       sync.RWMutex
	loaded   map[string]*loadedExtension
	order    []string
	handlers []EventHandler
	closed   bool
}

type loadedExtension struct {
	desc      Descriptor
	module    Module
	requestID string
	loadedAt  time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithRegistry shares a module-resolution registry with the loader.
func WithRegistry(r *modconfig.Registry) Option {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithSink sets where diagnostics are reported. Defaults to the logger.
func WithSink(s Sink) Option {
	return func(l *Loader) {
		l.sink = s
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithInitTimeout sets the init hook budget.
func WithInitTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.SetInitTimeout(d)
	}
}

// WithConcurrency bounds how many loads LoadAll runs at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// NewLoader creates a loader that executes modules with fetcher.
func NewLoader(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher:     fetcher,
		loaded:      make(map[string]*loadedExtension),
		concurrency: 4,
	}
	l.initTimeout.Store(int64(DefaultInitTimeout))
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.registry == nil {
		l.registry = modconfig.NewRegistry()
	}
	if l.sink == nil {
		l.sink = NewLogSink(l.logger)
	}
	l.supervisor = NewSupervisor(l.InitTimeout, l.logger.Named("supervisor"))
	return l
}

// InitTimeout returns the current init hook budget.
func (l *Loader) InitTimeout() time.Duration {
	return time.Duration(l.initTimeout.Load())
}

// SetInitTimeout changes the init hook budget. It applies to hooks that
// start after the call; a non-positive value restores the default.
func (l *Loader) SetInitTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultInitTimeout
	}
	l.initTimeout.Store(int64(d))
}

// Registry returns the module-resolution registry.
func (l *Loader) Registry() *modconfig.Registry {
	return l.registry
}

// LoadExtension starts loading the named extension from cfg.BaseURL, using
// mainModule as its entry point ("main" when empty).
func (l *Loader) LoadExtension(ctx context.Context, name string, cfg Config, mainModule string) *Future {
	return l.Load(ctx, Descriptor{Name: name, BaseURL: cfg.BaseURL, MainModule: mainModule})
}

// Load starts loading desc and returns immediately. The returned Future
// settles exactly once; on failure exactly one diagnostic is reported before
// it settles. Loading a name again rebuilds its module configuration from the
// current manifest and, on success, replaces the loaded module.
func (l *Loader) Load(ctx context.Context, desc Descriptor, opts ...RequestOption) *Future {
	req := NewLoadRequest(desc, opts...)
	fut := newFuture(req)
	go l.run(ctx, req, fut)
	return fut
}

// LoadAll loads every descriptor, at most the configured concurrency at a
// time, and waits for all of them. Results are in input order.
func (l *Loader) LoadAll(ctx context.Context, descs []Descriptor) []Result {
	results := make([]Result, len(descs))

	var g errgroup.Group
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}
	for i, desc := range descs {
		g.Go(func() error {
			fut := l.Load(ctx, desc)
			results[i] = Result{
				Descriptor: fut.Request().Descriptor,
				RequestID:  fut.Request().ID,
			}
			<-fut.Done()
			results[i].Err = fut.Err()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *Loader) run(ctx context.Context, req *LoadRequest, fut *Future) {
	desc := req.Descriptor
	logger := l.logger.With(
		zap.String("extension", desc.Name),
		zap.String("request_id", req.ID),
	)

	mod, lerr := l.execute(ctx, req, logger)
	if lerr != nil {
		if mod != nil {
			if err := mod.Close(); err != nil {
				logger.Warn("closing failed module", zap.Error(err))
			}
		}
		l.registry.Release(desc.Name)
		l.fail(req, fut, lerr)
		return
	}

	if err := req.advance(StateReady); err != nil {
		logger.Error("unexpected state", zap.Error(err))
	}
	l.register(req, mod, logger)
	logger.Info("extension loaded", zap.Stringer("state", req.State()))
	l.emit(Event{Type: EventLoaded, Extension: desc.Name, RequestID: req.ID})
	fut.resolve()
}

// execute walks the request through configuration, fetch and init. It
// returns the fetched module, if any, alongside a load error.
func (l *Loader) execute(ctx context.Context, req *LoadRequest, logger *zap.Logger) (Module, *Error) {
	desc := req.Descriptor

	if err := desc.Validate(); err != nil {
		return nil, moduleError(desc, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceledError(desc, context.Cause(ctx))
	}

	_ = req.advance(StateConfigMerging)
	baseDir, err := ResolveBaseURL(desc.BaseURL)
	if err != nil {
		return nil, moduleError(desc, err)
	}
	manifestPath := req.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(baseDir, modconfig.ManifestFile)
	}
	manifest, err := modconfig.ReadManifest(manifestPath)
	if err != nil {
		return nil, configError(desc, err)
	}
	// A fresh request starts from an empty namespace so a reload without
	// Unload picks up changed aliases.
	l.registry.Release(desc.Name)
	resolution, conflicts := l.registry.Merge(desc.Name, baseDir, manifest)
	for _, c := range conflicts {
		logger.Warn("module configuration conflict", zap.Stringer("conflict", c))
	}

	if err := ctx.Err(); err != nil {
		return nil, canceledError(desc, context.Cause(ctx))
	}
	_ = req.advance(StateModuleFetching)
	mod, err := l.fetcher.Fetch(ctx, FetchRequest{
		Name:       desc.Name,
		BaseURL:    desc.BaseURL,
		BaseDir:    baseDir,
		MainModule: desc.MainModule,
		Resolution: resolution,
		Logger:     logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceledError(desc, context.Cause(ctx))
		}
		return nil, moduleError(desc, err)
	}

	hook := mod.InitHook()
	if hook == nil {
		logger.Debug("no init hook exported")
		return mod, nil
	}

	_ = req.advance(StateInitializing)
	outcome := l.supervisor.Run(ctx, hook)
	if lerr := outcomeError(desc, outcome); lerr != nil {
		return mod, lerr
	}
	return mod, nil
}

func (l *Loader) fail(req *LoadRequest, fut *Future, lerr *Error) {
	// advance is the once-only guard. The diagnostic and event go out
	// before the future settles so waiters observe them.
	if err := req.advance(StateFailed); err != nil {
		return
	}
	l.sink.Report(Diagnostic{
		Kind:      lerr.Kind,
		Extension: req.Descriptor.Name,
		BaseURL:   req.Descriptor.BaseURL,
		RequestID: req.ID,
		Message:   lerr.Message,
	})
	l.emit(Event{Type: EventFailed, Extension: req.Descriptor.Name, RequestID: req.ID, Err: lerr})
	fut.reject(lerr)
}

// register adds a ready module to the loaded set. A previous module of the
// same name is replaced and closed.
func (l *Loader) register(req *LoadRequest, mod Module, logger *zap.Logger) {
	name := req.Descriptor.Name

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = mod.Close()
		return
	}
	prev, exists := l.loaded[name]
	l.loaded[name] = &loadedExtension{
		desc:      req.Descriptor,
		module:    mod,
		requestID: req.ID,
		loadedAt:  time.Now(),
	}
	if !exists {
		l.order = append(l.order, name)
	}
	l.mu.Unlock()

	if exists {
		logger.Warn("replacing loaded extension", zap.String("previous_request_id", prev.requestID))
		if err := prev.module.Close(); err != nil {
			logger.Warn("closing replaced module", zap.Error(err))
		}
	}
}

// Unload closes a loaded extension and drops its module configuration.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	ext, ok := l.loaded[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("extension %q: %w", name, ErrNotLoaded)
	}
	delete(l.loaded, name)
	l.removeFromOrder(name)
	l.mu.Unlock()

	l.registry.Release(name)
	err := ext.module.Close()
	l.emit(Event{Type: EventUnloaded, Extension: name, RequestID: ext.requestID, Err: err})
	return err
}

// Loaded returns the names of ready extensions in load order.
func (l *Loader) Loaded() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Module returns the module of a ready extension.
func (l *Loader) Module(name string) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ext, ok := l.loaded[name]
	if !ok {
		return nil, false
	}
	return ext.module, true
}

// Close unloads every extension. Loads that complete afterwards are closed
// immediately instead of being registered.
func (l *Loader) Close() error {
	l.mu.Lock()
	l.closed = true
	names := make([]string, len(l.order))
	copy(names, l.order)
	l.mu.Unlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := l.Unload(names[i]); err != nil && !errors.Is(err, ErrNotLoaded) {
			errs = append(errs, fmt.Errorf("unload %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (l *Loader) removeFromOrder(name string) {
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// ResolveBaseURL converts a base URL to a local directory path. Plain paths
// and file:// URLs are accepted.
func ResolveBaseURL(baseURL string) (string, error) {
	if !strings.Contains(baseURL, "://") {
		return filepath.Abs(filepath.FromSlash(baseURL))
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBaseURL, u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote host %s", ErrUnsupportedBaseURL, u.Host)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}
