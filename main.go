package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"capschord/internal/config"
	"capschord/internal/sessionlog"
	"capschord/internal/singleinstance"
)

const recentWarningCapacity = 64

// CLI is the daemon command line.
type CLI struct {
	Config    string `help:"Path to config.yaml (default: per-user config dir)." type:"path" env:"CAPSCHORD_CONFIG"`
	LogLevel  string `help:"Log level: debug, info, warn or error. Overrides log_level in the config file." env:"CAPSCHORD_LOG_LEVEL"`
	LogFile   string `help:"Also append logs to this file." type:"path"`
	Pipe      string `help:"Control pipe name (default: per-user pipe)."`
	NoWatch   bool   `help:"Do not reload the config file when it changes."`
	NoControl bool   `help:"Do not serve the control pipe, regardless of control_pipe in the config."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("capschord"),
		kong.Description("Caps Lock chord daemon: hold Caps Lock and press a key to run a command."),
		kong.UsageOnError(),
	)

	warnings := sessionlog.NewRing(recentWarningCapacity)
	levelVar := new(slog.LevelVar)
	pinned := cli.LogLevel != ""
	if pinned {
		level, err := parseLogLevel(cli.LogLevel)
		kctx.FatalIfErrorf(err)
		levelVar.Set(level)
	}

	logger, closeLog, err := setupLogger(levelVar, cli.LogFile, warnings)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logger:", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	code := run(cli, levelVar, pinned, warnings)
	closeLog()
	os.Exit(code)
}

func run(cli CLI, levelVar *slog.LevelVar, pinned bool, warnings *sessionlog.Ring) int {
	lock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Error("[capschord] another instance is already running")
		return 1
	}
	if err != nil {
		slog.Warn("[capschord] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[capschord] mutex release failed", "error", releaseErr)
			}
		}()
	}

	configPath := cli.Config
	if configPath == "" {
		configPath = config.DefaultPath()
		for _, message := range config.ConsumeDefaultPathWarnings() {
			slog.Warn("[WARN-CONFIG] " + message)
		}
	}

	app := NewApp(AppOptions{
		ConfigPath:    configPath,
		PipeName:      cli.Pipe,
		LogLevel:      levelVar,
		LogLevelFixed: pinned,
		Warnings:      warnings,
		Watch:         !cli.NoWatch,
		Control:       !cli.NoControl,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx); err != nil {
		slog.Error("[capschord] exiting", "error", err)
		return 1
	}
	return 0
}

// setupLogger builds the process logger: a text handler on stderr (and
// logFile when set) whose warnings are also kept in the ring.
func setupLogger(level slog.Leveler, logFile string, ring *sessionlog.Ring) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	base := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	var callback sessionlog.EntryCallback
	if ring != nil {
		callback = ring.Add
	}
	return slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, callback)), closeFn, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	normalized, err := config.NormalizeLogLevel(value)
	if err != nil {
		return slog.LevelInfo, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(normalized)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", value, err)
	}
	return level, nil
}
