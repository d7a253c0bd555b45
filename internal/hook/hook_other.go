//go:build !windows

package hook

import (
	"errors"
	"log/slog"
)

// Run reports ErrUnsupported; low-level keyboard hooks exist only on Windows.
func Run(h Handler, _ *Keyboard) error {
	if h == nil {
		return errors.New("hook handler is required")
	}
	slog.Warn("[hook] DEBUG low-level keyboard hook is not supported on this platform")
	return ErrUnsupported
}

// Stop is a no-op on this platform.
func Stop() error {
	return nil
}
