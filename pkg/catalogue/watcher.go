package catalogue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay is how long the watcher waits for file activity to
// settle before reloading.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads a Registry when its definition files change.
type Watcher struct {
	loader   *Loader
	registry *Registry
	sources  []string
	logger   zerolog.Logger
	delay    time.Duration

	mu       sync.Mutex
	onReload []func(*LoadResult)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher over sources. Start must be called to begin watching.
func NewWatcher(loader *Loader, registry *Registry, sources []string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		registry: registry,
		sources:  sources,
		logger:   logger.With().Str("component", "catalogue-watcher").Logger(),
		delay:    DefaultReloadDelay,
	}
}

// SetDelay overrides the reload debounce delay.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// OnReload registers fn to run after every successful reload.
func (w *Watcher) OnReload(fn func(*LoadResult)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.onReload = append(w.onReload, fn)
}

// Start begins watching. Events are processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range w.sources {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := watchDirectory(watcher, path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
			continue
		}

		// editors replace files, so watch the parent directory
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.processEvents(ctx, watcher, w.done)

	w.logger.Info().
		Int("paths", len(w.sources)).
		Msg("Started watching dataset definitions")

	return nil
}

// watchDirectory adds a directory and its subdirectories to the watcher.
func watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// processEvents debounces definition file changes into reloads.
func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer watcher.Close()

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if _, ok := FormatFromPath(event.Name); !ok {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Dataset definition changed")
			pending = time.After(w.delay)

		case <-pending:
			pending = nil
			if err := w.Reload(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to reload datasets, keeping current catalogue")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Reload loads every source again and swaps the registry contents.
func (w *Watcher) Reload(ctx context.Context) error {
	result, err := w.registry.LoadFrom(ctx, w.loader, w.sources)
	if err != nil {
		return err
	}

	w.logger.Info().
		Int("datasets", len(result.Datasets)).
		Int("files", len(result.SourceFiles)).
		Msg("Datasets reloaded")

	w.mu.Lock()
	callbacks := append([]func(*LoadResult){}, w.onReload...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(result)
	}
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}
