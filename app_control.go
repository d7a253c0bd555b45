package main

import (
	"fmt"
	"log/slog"
	"os"

	"capschord/internal/config"
	"capschord/internal/ipc"
)

// Execute implements ipc.Executor for the control pipe.
func (a *App) Execute(req ipc.ControlRequest) ipc.ControlResponse {
	slog.Info("[ipc] control command", "id", req.ID, "command", req.Command)
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.ControlResponse{OK: true, Status: a.status()}
	case ipc.CommandFreeze:
		a.engine.Freeze()
		return ipc.ControlResponse{OK: true, Message: "chord handling frozen"}
	case ipc.CommandUnfreeze:
		a.engine.Unfreeze()
		return ipc.ControlResponse{OK: true, Message: "chord handling resumed"}
	case ipc.CommandClear:
		return a.clearBindings()
	case ipc.CommandReload:
		return a.reload()
	default:
		return ipc.ControlResponse{Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (a *App) status() *ipc.Status {
	cfg := a.configSnapshot()
	st := &ipc.Status{
		PID:        os.Getpid(),
		Chord:      a.engine.Snapshot(),
		Listeners:  a.engine.ListenerCount(),
		Bindings:   a.bindingCount(),
		ConfigPath: a.opts.ConfigPath,
		LogLevel:   cfg.LogLevel,
	}
	if a.runner != nil {
		st.Actions = a.runner.Stats()
	}
	if a.opts.Warnings != nil {
		st.Warnings = a.opts.Warnings.Entries()
	}
	return st
}

func (a *App) clearBindings() ipc.ControlResponse {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	a.engine.ClearListeners()
	a.cfgMu.Lock()
	a.bindings = 0
	a.cfgMu.Unlock()
	return ipc.ControlResponse{OK: true, Message: "all bindings cleared until the next reload"}
}

func (a *App) reload() ipc.ControlResponse {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return ipc.ControlResponse{Error: fmt.Sprintf("reload %s: %v", a.opts.ConfigPath, err)}
	}
	if err := a.applyConfig(cfg); err != nil {
		return ipc.ControlResponse{Error: fmt.Sprintf("apply bindings: %v", err)}
	}
	return ipc.ControlResponse{OK: true, Message: fmt.Sprintf("%d bindings applied", a.bindingCount())}
}
