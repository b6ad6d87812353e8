package extension

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/extload/internal/modconfig"
)

// DefaultDebounce is how long Watch waits for file activity to settle.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce collapses bursts of file events. Zero uses DefaultDebounce.
	Debounce time.Duration

	// OnResult is called after every load attempt, including the first.
	OnResult func(Result)
}

// Watch loads desc, then reloads it whenever a module or manifest under its
// base directory changes, until ctx ends. The extension is unloaded on return.
func (l *Loader) Watch(ctx context.Context, desc Descriptor, opts WatchOptions) error {
	desc = desc.withDefaults()
	baseDir, err := ResolveBaseURL(desc.BaseURL)
	if err != nil {
		return err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, baseDir); err != nil {
		return err
	}

	logger := l.logger.With(zap.String("extension", desc.Name))
	reload := func(first bool) {
		if !first {
			if err := l.Unload(desc.Name); err != nil && !errors.Is(err, ErrNotLoaded) {
				logger.Warn("unload before reload", zap.Error(err))
			}
		}
		fut := l.Load(ctx, desc)
		<-fut.Done()
		res := Result{Descriptor: desc, RequestID: fut.Request().ID, Err: fut.Err()}
		if !first && res.Err == nil {
			l.emit(Event{Type: EventReloaded, Extension: desc.Name, RequestID: res.RequestID})
		}
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	reload(true)
	defer func() {
		if err := l.Unload(desc.Name); err != nil && !errors.Is(err, ErrNotLoaded) {
			logger.Warn("unload on watch exit", zap.Error(err))
		}
	}()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				_ = addTree(watcher, ev.Name)
			}
			if !relevant(ev.Name) {
				continue
			}
			logger.Debug("change detected", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			reload(false)
		}
	}
}

// relevant reports whether a changed file can affect a load.
func relevant(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".lua") || base == modconfig.ManifestFile || base == MetadataFile
}

// addTree watches dir and its subdirectories. Non-directories are ignored.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
