// Package chord implements the Caps Lock chord engine: modifier tracking,
// Caps Lock toggle suppression and replay, and shortcut dispatch.
//
// The engine is platform-neutral. A platform hook feeds it RawEvents and
// swallows every event for which HandleKey returns true.
package chord

import (
	"log/slog"

	"capschord/internal/keycode"
)

// RawEvent is one low-level keyboard transition as delivered by the hook.
type RawEvent struct {
	Code     uint32 // virtual-key code
	ScanCode uint32
	Flags    uint32
	Time     uint32
	Down     bool
}

// Options wires the engine to its platform collaborators.
type Options struct {
	// Keyboard backs the self-heal check. Nil disables self-heal.
	Keyboard KeyboardState
	// Replayer performs the synthetic Caps Lock toggle. Nil skips replays.
	Replayer Replayer
	// OnListenerPanic receives the value recovered from a panicking listener.
	OnListenerPanic func(recovered any)
}

// Engine owns the chord state and listener registry. One engine is driven
// by one hook; HandleKey must only be called from the hook thread.
type Engine struct {
	state           modifierState
	registry        registry
	keyboard        KeyboardState
	replayer        Replayer
	onListenerPanic func(any)
}

// New creates an engine with no listeners.
func New(opts Options) *Engine {
	return &Engine{
		keyboard:        opts.Keyboard,
		replayer:        opts.Replayer,
		onListenerPanic: opts.OnListenerPanic,
	}
}

// RegisterListener appends l to the dispatch list.
func (e *Engine) RegisterListener(l Listener) {
	if l == nil {
		panic("chord: nil listener")
	}
	e.registry.add(l)
}

// RegisterChord registers fn for Caps Lock + modifiers + key with an exact
// modifier match. It panics on a modifier outside Ctrl/Shift/Alt/AltGr;
// use ValidateChordModifiers first when modifiers come from user input.
func (e *Engine) RegisterChord(key keycode.Key, modifiers []keycode.Key, fn func()) {
	l, err := ChordListener(key, modifiers, fn)
	if err != nil {
		panic("chord: " + err.Error())
	}
	e.registry.add(l)
}

// ClearListeners drops every registered listener.
func (e *Engine) ClearListeners() {
	n := e.registry.clear()
	slog.Info("[chord] listeners cleared", "count", n)
}

// ListenerCount returns the number of registered listeners.
func (e *Engine) ListenerCount() int {
	return e.registry.len()
}

// Freeze stops dispatch and flag tracking for future events without
// uninstalling the hook. An event already in flight is unaffected.
func (e *Engine) Freeze() {
	e.state.frozen.Store(true)
	slog.Info("[chord] engine frozen")
}

// Unfreeze resumes dispatch and flag tracking.
func (e *Engine) Unfreeze() {
	e.state.frozen.Store(false)
	slog.Info("[chord] engine unfrozen")
}

// Frozen reports whether Freeze is in effect.
func (e *Engine) Frozen() bool {
	return e.state.frozen.Load()
}

// Snapshot returns the current tracker flags.
func (e *Engine) Snapshot() State {
	return e.state.snapshot()
}

// HandleKey processes one raw event and reports whether the hook should
// swallow it. While frozen or replaying the event is forwarded untouched.
func (e *Engine) HandleKey(ev RawEvent) bool {
	if e.state.replaying.Load() || e.state.frozen.Load() {
		return false
	}

	e.selfHeal()

	key := keycode.FromCode(ev.Code)
	kind := classify(ev.Code, key)
	if ev.Down {
		return e.keyDown(key, kind)
	}
	return e.keyUp(kind)
}

func (e *Engine) keyDown(key keycode.Key, kind keyKind) bool {
	chordActive := e.state.capsHeld.Load()
	intercept := false

	switch kind {
	case kindCaps:
		e.beginChord(chordActive)
		intercept = true
	case kindOther:
		if chordActive {
			e.state.otherKey.Store(true)
		}
	default:
		e.state.modifier(kind).Store(true)
		intercept = chordActive
	}

	// Caps Lock auto-repeat is not a chord key.
	if chordActive && kind != kindCaps {
		if e.registry.dispatch(e.event(key), e.onListenerPanic) {
			intercept = true
		}
	}
	return intercept
}

func (e *Engine) keyUp(kind keyKind) bool {
	switch kind {
	case kindCaps:
		e.endChord()
		return true
	case kindOther:
		return false
	default:
		e.state.modifier(kind).Store(false)
		return false
	}
}

func (e *Engine) event(key keycode.Key) Event {
	return Event{
		Key:   key,
		Ctrl:  e.state.ctrl.Load(),
		Shift: e.state.shift.Load(),
		Alt:   e.state.alt.Load(),
		Meta:  e.state.meta.Load(),
	}
}

// selfHeal clears stale flags when the platform reports nothing held,
// covering keyups lost while the hook was bypassed.
func (e *Engine) selfHeal() {
	if e.keyboard == nil {
		return
	}
	if e.keyboard.HeldModifiers()&modAll != 0 {
		return
	}
	e.state.heal()
}
