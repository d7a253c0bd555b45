package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"capschord/internal/chord"
	"capschord/internal/keycode"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	defaultQueueSize = 16
	maxQueueSize     = 1024
)

// defaultConfigDirFn is a test seam; tests override it to point Save at t.TempDir.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := slices.Clone(defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Binding maps one Caps Lock chord to a command.
//
// SECURITY: Command and Args are executed verbatim when the chord fires.
// They come from the per-user config file (0o600) and must never be filled
// from another source.
type Binding struct {
	Key         string   `yaml:"key" json:"key"`
	Modifiers   []string `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`
	Command     string   `yaml:"command" json:"command"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Chord resolves the binding's key names.
func (b Binding) Chord() (keycode.Key, []keycode.Key, error) {
	key, err := keycode.Parse(b.Key)
	if err != nil {
		return 0, nil, fmt.Errorf("key: %w", err)
	}
	mods, err := keycode.ParseList(b.Modifiers)
	if err != nil {
		return 0, nil, fmt.Errorf("modifiers: %w", err)
	}
	if err := chord.ValidateChordModifiers(mods); err != nil {
		return 0, nil, fmt.Errorf("modifiers: %w", err)
	}
	return key, mods, nil
}

// Name returns the canonical chord name, e.g. "Ctrl+KeyU".
func (b Binding) Name() (string, error) {
	key, mods, err := b.Chord()
	if err != nil {
		return "", err
	}
	return chord.DescribeChord(key, mods)
}

// Config is capschord runtime configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error. The --log-level flag wins.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// ControlPipe enables the per-user named pipe used by capschordctl.
	ControlPipe bool `yaml:"control_pipe" json:"control_pipe"`
	// QueueSize bounds pending actions. Chords fired while the queue is
	// full are dropped with a warning.
	QueueSize int       `yaml:"queue_size" json:"queue_size"`
	Bindings  []Binding `yaml:"bindings" json:"bindings"`
}

// DefaultConfig returns the configuration written by EnsureFile.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		ControlPipe: true,
		QueueSize:   defaultQueueSize,
		Bindings: []Binding{
			{
				Key:         "N",
				Command:     "notepad.exe",
				Description: "open Notepad",
			},
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; bindings may not persist.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "capschord", "config.yaml")
}

// Load reads the config file. A missing or empty file yields defaults.
// Bindings are validated; the first invalid binding fails the whole load so
// a typo never silently disables a chord.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}

	cfg = Config{}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	hasControlPipe, probeErr := probeControlPipe(raw)
	if probeErr != nil {
		slog.Warn("[WARN-CONFIG] failed to probe control_pipe, preserving parsed value", "error", probeErr)
	} else if !hasControlPipe {
		cfg.ControlPipe = DefaultConfig().ControlPipe
	}

	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config loaded", "path", path, "bindings", len(cfg.Bindings))
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
		slog.Info("[DEBUG-CONFIG] wrote default config", "path", path)
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines.
func Clone(src Config) Config {
	dst := src
	if src.Bindings != nil {
		dst.Bindings = make([]Binding, len(src.Bindings))
		for i, b := range src.Bindings {
			dst.Bindings[i] = b
			dst.Bindings[i].Modifiers = slices.Clone(b.Modifiers)
			dst.Bindings[i].Args = slices.Clone(b.Args)
		}
	}
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}
	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	level, err := NormalizeLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	cfg.LogLevel = level

	validateQueueSize(cfg)

	seen := make(map[string]int, len(cfg.Bindings))
	for i := range cfg.Bindings {
		b := &cfg.Bindings[i]
		b.Key = strings.TrimSpace(b.Key)
		b.Command = strings.TrimSpace(b.Command)
		if err := validateCommand(b.Command); err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
		name, err := b.Name()
		if err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("bindings[%d]: chord %s already bound by bindings[%d]", i, name, prev)
		}
		seen[name] = i
	}
	return nil
}

// NormalizeLogLevel lowercases level and checks it names a slog level.
// Empty means info.
func NormalizeLogLevel(level string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "":
		return "info", nil
	case "debug", "info", "warn", "error":
		return normalized, nil
	case "warning":
		return "warn", nil
	default:
		return "", fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", level)
	}
}

// validateQueueSize keeps loading non-fatal: out-of-range values are logged
// and replaced.
func validateQueueSize(cfg *Config) {
	switch {
	case cfg.QueueSize == 0:
		cfg.QueueSize = defaultQueueSize
	case cfg.QueueSize < 0 || cfg.QueueSize > maxQueueSize:
		slog.Warn("[WARN-CONFIG] queue_size out of range, using default",
			"queueSize", cfg.QueueSize, "max", maxQueueSize, "default", defaultQueueSize)
		cfg.QueueSize = defaultQueueSize
	}
}

func validateCommand(command string) error {
	if command == "" {
		return errors.New("command is required")
	}
	if strings.ContainsRune(command, 0) {
		return errors.New("command contains null byte")
	}
	return nil
}

type rawControlPipeProbe struct {
	ControlPipe *bool `yaml:"control_pipe"`
}

// probeControlPipe reports whether control_pipe was set explicitly, since a
// missing bool unmarshals to false but defaults to true.
func probeControlPipe(raw []byte) (bool, error) {
	var probe rawControlPipeProbe
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return false, err
	}
	return probe.ControlPipe != nil, nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
