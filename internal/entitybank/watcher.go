package entitybank

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrWatcherDisabled indicates no global tier path is configured to watch.
var ErrWatcherDisabled = errors.New("no global tier configured")

// reloadMinInterval bounds how often file events may trigger a reload.
// Editors and atomic renames emit event bursts; one reload per burst is
// plenty.
const reloadMinInterval = 2 * time.Second

// Watcher reloads the global tier when another process replaces its file,
// so a long-running daemon sees shared intelligence published by other
// workstations without restarting.
//
// The tier file's directory is watched rather than the file itself:
// atomic rename-replace would otherwise drop the watch with the old
// inode. The project tier is never watched; this process is its only
// writer. Reloads triggered by our own propagation writes are harmless,
// the rate limiter coalesces them.
type Watcher struct {
	service *Service
	path    string
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
	logger  *zap.Logger
	stop    chan struct{}
}

// NewWatcher creates a watcher for the service's global tier file.
// Returns ErrWatcherDisabled when the store has no global tier.
func NewWatcher(service *Service, logger *zap.Logger) (*Watcher, error) {
	if service == nil {
		return nil, ErrNilStore
	}
	if !service.store.globalEnabled() {
		return nil, ErrWatcherDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	return &Watcher{
		service: service,
		path:    service.store.globalPath,
		watcher: watcher,
		limiter: rate.NewLimiter(rate.Every(reloadMinInterval), 1),
		logger:  logger,
		stop:    make(chan struct{}),
	}, nil
}

// Start watches the global tier directory and processes events in a
// background goroutine. Call Stop to clean up.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx)

	w.logger.Info("watching global tier", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.concernsTierFile(event) {
				continue
			}
			if !w.limiter.Allow() {
				continue
			}
			if err := w.service.ReloadGlobal(ctx); err != nil {
				w.logger.Warn("global tier reload failed", zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

// concernsTierFile reports whether a directory event touched the global
// tier file with an op that can change its contents.
func (w *Watcher) concernsTierFile(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
