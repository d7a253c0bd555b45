package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"capschord/internal/workerutil"
)

// defaultReloadDelay coalesces the write bursts editors produce on save.
const defaultReloadDelay = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	delay    time.Duration
	onChange func(Config)
	onError  func(error)
	started  chan struct{}
}

// NewWatcher returns a watcher for path. onChange receives every config that
// loads cleanly; onError receives load failures. Either may be nil.
func NewWatcher(path string, onChange func(Config), onError func(error)) *Watcher {
	return &Watcher{
		path:     path,
		delay:    defaultReloadDelay,
		onChange: onChange,
		onError:  onError,
		started:  make(chan struct{}),
	}
}

// Started is closed once the watch is registered.
func (w *Watcher) Started() <-chan struct{} {
	return w.started
}

// Run watches the directory containing the config file until ctx is done.
// The directory is watched rather than the file because editors commonly
// replace the file through a rename.
func (w *Watcher) Run(ctx context.Context) error {
	if strings.TrimSpace(w.path) == "" {
		return errors.New("config path required")
	}
	target, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("watch config: resolve path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(target)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config", "path", target)
	close(w.started)

	debounced := debounce.New(w.delay)
	defer debounced(func() {})

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev, target) {
				continue
			}
			slog.Debug("[DEBUG-CONFIG] config file event", "op", ev.Op.String(), "name", ev.Name)
			debounced(func() {
				if ctx.Err() != nil {
					return
				}
				workerutil.Call("config-reload", w.reload)
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event, target string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(name, target)
	}
	return name == target
}

// reload skips a missing file: a rename-away is followed by a create, and
// falling back to defaults in between would drop every binding.
func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("[DEBUG-CONFIG] config file missing during reload, waiting for recreate", "path", w.path)
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config reload failed, keeping previous bindings", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	slog.Info("[DEBUG-CONFIG] config reloaded", "path", w.path, "bindings", len(cfg.Bindings))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
