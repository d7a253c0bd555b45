package chord

import (
	"log/slog"

	"capschord/internal/workerutil"
)

// Replayer injects one synthetic Caps Lock press and release.
type Replayer interface {
	ReplayCapsLock() error
}

// ReplayerFunc adapts a plain function to Replayer.
type ReplayerFunc func() error

// ReplayCapsLock calls f.
func (f ReplayerFunc) ReplayCapsLock() error {
	return f()
}

// beginChord handles a Caps Lock keydown. Only the first keydown of a hold
// resets otherKey; auto-repeat keydowns leave it alone.
func (e *Engine) beginChord(alreadyHeld bool) {
	if !alreadyHeld {
		e.state.otherKey.Store(false)
	}
	e.state.capsHeld.Store(true)
}

// endChord handles a Caps Lock keyup. A tap with no other key schedules a
// replay so the toggle the user asked for still happens.
func (e *Engine) endChord() {
	e.state.capsHeld.Store(false)
	if e.state.otherKey.Swap(false) {
		return
	}
	e.scheduleReplay()
}

// scheduleReplay raises the re-entrancy guard on the hook thread, before the
// injected events can arrive, and lowers it from the worker once injection
// returns. An injection call that never returns leaves the guard set.
func (e *Engine) scheduleReplay() {
	if e.replayer == nil {
		slog.Debug("[chord] DEBUG caps lock replay skipped: no replayer")
		return
	}
	e.state.replaying.Store(true)
	workerutil.Go("caps-replay", func() {
		defer e.state.replaying.Store(false)
		if err := e.replayer.ReplayCapsLock(); err != nil {
			slog.Debug("[chord] DEBUG caps lock replay failed", "error", err)
		}
	})
}
