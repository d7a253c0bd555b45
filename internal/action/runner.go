// Package action launches the commands bound to chords. Chord callbacks run
// on the keyboard hook thread, so they only enqueue; a worker goroutine
// starts the processes.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync/atomic"

	"capschord/internal/chord"
	"capschord/internal/config"
	"capschord/internal/workerutil"
)

// Action is one command launch.
type Action struct {
	Chord   string
	Command string
	Args    []string
}

// Stats counts runner activity since construction.
type Stats struct {
	Queued   int64 `json:"queued"`
	Started  int64 `json:"started"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
	Capacity int   `json:"capacity"`
	Pending  int   `json:"pending"`
}

// Runner owns the bounded action queue.
type Runner struct {
	queue chan Action
	start func(Action) error

	queued  atomic.Int64
	started atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewRunner creates a runner whose queue holds size pending actions.
func NewRunner(size int) *Runner {
	if size <= 0 {
		size = 1
	}
	return &Runner{
		queue: make(chan Action, size),
		start: startProcess,
	}
}

// Trigger enqueues a without blocking. It reports false and drops the
// action when the queue is full.
func (r *Runner) Trigger(a Action) bool {
	select {
	case r.queue <- a:
		r.queued.Add(1)
		return true
	default:
		r.dropped.Add(1)
		slog.Warn("[action] queue full, dropping action", "chord", a.Chord, "command", a.Command)
		return false
	}
}

// Run starts queued actions until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-r.queue:
			if err := r.start(a); err != nil {
				r.failed.Add(1)
				slog.Warn("[action] failed to start command", "chord", a.Chord, "command", a.Command, "error", err)
				continue
			}
			r.started.Add(1)
		}
	}
}

// Stats returns a snapshot of the runner counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Queued:   r.queued.Load(),
		Started:  r.started.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
		Capacity: cap(r.queue),
		Pending:  len(r.queue),
	}
}

func startProcess(a Action) error {
	cmd := exec.Command(a.Command, a.Args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", a.Command, err)
	}
	slog.Info("[action] command started", "chord", a.Chord, "command", a.Command, "pid", cmd.Process.Pid)
	workerutil.Go("action-wait", func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("[action] DEBUG command exited with error", "command", a.Command, "error", err)
		}
	})
	return nil
}

// Registrar is the part of *chord.Engine that Apply needs.
type Registrar interface {
	ClearListeners()
	RegisterListener(l chord.Listener)
}

// Apply replaces every listener on reg with one chord listener per binding.
// Listeners are built before anything is cleared, so an invalid binding
// leaves the previous set in place.
func Apply(reg Registrar, bindings []config.Binding, r *Runner) (int, error) {
	if r == nil {
		return 0, errors.New("action runner is required")
	}
	listeners := make([]chord.Listener, 0, len(bindings))
	for i, b := range bindings {
		key, mods, err := b.Chord()
		if err != nil {
			return 0, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		name, err := chord.DescribeChord(key, mods)
		if err != nil {
			return 0, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		a := Action{Chord: name, Command: b.Command, Args: b.Args}
		l, err := chord.ChordListener(key, mods, func() { r.Trigger(a) })
		if err != nil {
			return 0, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		listeners = append(listeners, l)
	}

	reg.ClearListeners()
	for _, l := range listeners {
		reg.RegisterListener(l)
	}
	slog.Info("[action] bindings applied", "count", len(listeners))
	return len(listeners), nil
}
