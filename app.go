package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"capschord/internal/action"
	"capschord/internal/chord"
	"capschord/internal/config"
	"capschord/internal/hook"
	"capschord/internal/ipc"
	"capschord/internal/sessionlog"
	"capschord/internal/workerutil"
)

const shutdownWaitTimeout = 3 * time.Second

// AppOptions configures NewApp.
type AppOptions struct {
	ConfigPath string
	// PipeName overrides ipc.DefaultPipeName when set.
	PipeName string
	// LogLevel is updated from log_level on load and reload unless
	// LogLevelFixed is set. May be nil.
	LogLevel      *slog.LevelVar
	LogLevelFixed bool
	// Warnings backs the recent-warnings list in status. May be nil.
	Warnings *sessionlog.Ring
	Watch    bool
	Control  bool
}

// App wires the chord engine to the keyboard hook, the action runner, the
// config watcher and the control pipe.
type App struct {
	opts AppOptions

	keyboard *hook.Keyboard
	engine   *chord.Engine
	runner   *action.Runner

	// cfgMu guards cfg and bindings. Reload paths (watcher, control pipe)
	// serialize on applyMu so Apply and the snapshot update stay paired.
	applyMu  sync.Mutex
	cfgMu    sync.RWMutex
	cfg      config.Config
	bindings int

	runHook  func(hook.Handler, *hook.Keyboard) error
	stopHook func() error
}

// NewApp constructs the daemon without starting anything.
func NewApp(opts AppOptions) *App {
	keyboard := hook.NewKeyboard()
	return &App{
		opts:     opts,
		keyboard: keyboard,
		engine: chord.New(chord.Options{
			Keyboard: keyboard,
			Replayer: hook.Replayer{},
			OnListenerPanic: func(recovered any) {
				slog.Error("[chord] binding callback panicked", "panic", recovered)
			},
		}),
		runHook:  hook.Run,
		stopHook: hook.Stop,
	}
}

// Run loads the config, starts the background workers and runs the keyboard
// hook on the calling goroutine until ctx is done or the hook fails.
func (a *App) Run(ctx context.Context) error {
	cfg, err := config.EnsureFile(a.opts.ConfigPath)
	if err != nil {
		slog.Warn("[WARN-CONFIG] failed to load config at startup, running with defaults",
			"path", a.opts.ConfigPath, "error", err)
		cfg = config.DefaultConfig()
	}
	a.runner = action.NewRunner(cfg.QueueSize)
	if err := a.applyConfig(cfg); err != nil {
		slog.Warn("[WARN-CONFIG] startup bindings rejected, no chords registered", "error", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWG sync.WaitGroup
	defer func() {
		bgCancel()
		if !waitWithTimeout(bgWG.Wait, shutdownWaitTimeout) {
			slog.Warn("[capschord] timed out waiting for background workers during shutdown")
		}
	}()

	workerutil.RunWithPanicRecovery(bgCtx, "action-runner", &bgWG, a.runner.Run, workerutil.RecoveryOptions{})

	if a.opts.Control && cfg.ControlPipe {
		server := ipc.NewPipeServer(a.opts.PipeName, a)
		workerutil.RunWithPanicRecovery(bgCtx, "control-pipe", &bgWG, server.Serve, workerutil.RecoveryOptions{})
	} else {
		slog.Info("[ipc] control pipe disabled")
	}

	if a.opts.Watch {
		watcher := config.NewWatcher(a.opts.ConfigPath, a.reloadFromWatcher, nil)
		workerutil.RunWithPanicRecovery(bgCtx, "config-watch", &bgWG, func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("[WARN-CONFIG] config watcher stopped", "error", err)
			}
		}, workerutil.RecoveryOptions{})
	}

	hookDone := make(chan struct{})
	defer close(hookDone)
	workerutil.Go("hook-stop", func() {
		select {
		case <-ctx.Done():
			slog.Info("[capschord] shutdown requested")
			if err := a.stopHook(); err != nil {
				slog.Warn("[hook] stop failed", "error", err)
			}
		case <-hookDone:
		}
	})

	slog.Info("[capschord] running", "config", a.opts.ConfigPath, "bindings", a.bindingCount())
	if err := a.runHook(a.engine, a.keyboard); err != nil {
		return fmt.Errorf("keyboard hook: %w", err)
	}
	return nil
}

// applyConfig registers cfg's bindings and makes cfg the current snapshot.
// On error the previous bindings stay registered.
func (a *App) applyConfig(cfg config.Config) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	n, err := action.Apply(a.engine, cfg.Bindings, a.runner)
	if err != nil {
		return err
	}

	a.cfgMu.Lock()
	prev := a.cfg
	a.cfg = config.Clone(cfg)
	a.bindings = n
	a.cfgMu.Unlock()

	a.applyLogLevel(cfg.LogLevel)
	if a.runner != nil && prev.QueueSize != 0 && prev.QueueSize != cfg.QueueSize {
		slog.Warn("[WARN-CONFIG] queue_size change takes effect after restart",
			"current", a.runner.Stats().Capacity, "configured", cfg.QueueSize)
	}
	if prev.QueueSize != 0 && prev.ControlPipe != cfg.ControlPipe {
		slog.Warn("[WARN-CONFIG] control_pipe change takes effect after restart", "configured", cfg.ControlPipe)
	}
	return nil
}

func (a *App) reloadFromWatcher(cfg config.Config) {
	if err := a.applyConfig(cfg); err != nil {
		slog.Warn("[WARN-CONFIG] reloaded bindings rejected, keeping previous bindings", "error", err)
	}
}

func (a *App) applyLogLevel(value string) {
	if a.opts.LogLevel == nil || a.opts.LogLevelFixed {
		return
	}
	level, err := parseLogLevel(value)
	if err != nil {
		slog.Warn("[WARN-CONFIG] ignoring log_level", "value", value, "error", err)
		return
	}
	a.opts.LogLevel.Set(level)
}

func (a *App) configSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

func (a *App) bindingCount() int {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.bindings
}

// waitWithTimeout reports whether waitFn returned before timeout.
func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
