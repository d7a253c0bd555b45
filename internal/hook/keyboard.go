package hook

import (
	"sync/atomic"

	"capschord/internal/chord"
)

// modifierCodes lists the virtual-key codes polled for each tracked modifier.
var modifierCodes = []struct {
	mod   chord.Modifiers
	codes []uint32
}{
	{chord.ModCtrl, []uint32{0x11, 0xA2, 0xA3}},
	{chord.ModShift, []uint32{0x10, 0xA0, 0xA1}},
	{chord.ModAlt, []uint32{0x12, 0xA4, 0xA5}},
	{chord.ModMeta, []uint32{0x5B, 0x5C}},
	{chord.ModCapsLock, []uint32{0x14}},
}

// Keyboard answers the engine's self-heal query. A keydown swallowed by the
// hook never reaches the system key state, so the async state alone would
// report a held Caps Lock as released. Keyboard remembers swallowed keydowns
// until the matching keyup passes through the hook.
type Keyboard struct {
	swallowed [256]atomic.Bool
	keyDown   func(code uint32) bool
}

// NewKeyboard returns a Keyboard backed by the platform key state.
func NewKeyboard() *Keyboard {
	return &Keyboard{keyDown: asyncKeyDown}
}

// HeldModifiers implements chord.KeyboardState.
func (k *Keyboard) HeldModifiers() chord.Modifiers {
	var held chord.Modifiers
	for _, m := range modifierCodes {
		for _, code := range m.codes {
			if k.swallowed[code].Load() || (k.keyDown != nil && k.keyDown(code)) {
				held |= m.mod
				break
			}
		}
	}
	return held
}

// observe records the outcome of one hook decision.
func (k *Keyboard) observe(code uint32, down, swallowed bool) {
	if code >= uint32(len(k.swallowed)) {
		return
	}
	switch {
	case !down:
		k.swallowed[code].Store(false)
	case swallowed:
		k.swallowed[code].Store(true)
	}
}

// reset forgets every swallowed keydown. Called when a hook is installed,
// since keyups delivered while no hook was running were never observed.
func (k *Keyboard) reset() {
	for i := range k.swallowed {
		k.swallowed[i].Store(false)
	}
}
