// Package hook installs the global low-level keyboard hook that feeds the
// chord engine and provides the platform collaborators it needs: physical
// key state for self-heal and synthetic Caps Lock replay.
package hook

import (
	"errors"

	"capschord/internal/chord"
)

var (
	// ErrAlreadyRunning is returned by Run while another Run is active in the process.
	ErrAlreadyRunning = errors.New("keyboard hook already running")

	// ErrUnsupported is returned on platforms without a low-level keyboard hook.
	ErrUnsupported = errors.New("low-level keyboard hook is not supported on this platform")
)

// Handler decides, per raw keyboard event, whether the event is swallowed.
// *chord.Engine satisfies it.
type Handler interface {
	HandleKey(ev chord.RawEvent) bool
}
