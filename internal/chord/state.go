package chord

import (
	"sync/atomic"

	"capschord/internal/keycode"
)

// Modifiers is a bitmask over the keys that take part in chord tracking.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModShift
	ModAlt
	ModMeta
	ModCapsLock

	modAll = ModCtrl | ModShift | ModAlt | ModMeta | ModCapsLock
)

// Has reports whether m contains every bit of mod.
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod == mod
}

// KeyboardState answers direct OS queries about physical key state.
// It backs the self-heal check that recovers from lost keyup events.
type KeyboardState interface {
	// HeldModifiers reports which of Ctrl/Shift/Alt/Meta/CapsLock the
	// platform considers physically down right now.
	HeldModifiers() Modifiers
}

// State is a point-in-time copy of the tracker flags.
type State struct {
	Ctrl                bool `json:"ctrl"`
	Shift               bool `json:"shift"`
	Alt                 bool `json:"alt"`
	Meta                bool `json:"meta"`
	CapsHeld            bool `json:"caps_held"`
	OtherKeyDuringChord bool `json:"other_key_during_chord"`
	Replaying           bool `json:"replaying"`
	Frozen              bool `json:"frozen"`
}

// modifierState holds the chord tracker flags. Fields are individually atomic;
// no lock spans them because only the hook thread writes.
type modifierState struct {
	ctrl     atomic.Bool
	shift    atomic.Bool
	alt      atomic.Bool
	meta     atomic.Bool
	capsHeld atomic.Bool
	otherKey atomic.Bool

	// replaying is the re-entrancy guard held for the duration of a synthetic replay.
	replaying atomic.Bool
	// frozen is set by Engine.Freeze. It gates the callback exactly like
	// replaying but is owned by the caller.
	frozen atomic.Bool
}

type keyKind int

const (
	kindOther keyKind = iota
	kindCtrl
	kindShift
	kindAlt
	kindMeta
	kindCaps
)

// classify maps one raw event to the single flag it may update. Left and
// right variants collapse, the generic VK_CONTROL/VK_SHIFT/VK_MENU codes too.
func classify(code uint32, key keycode.Key) keyKind {
	switch code {
	case keycode.CodeControl:
		return kindCtrl
	case keycode.CodeShift:
		return kindShift
	case keycode.CodeMenu:
		return kindAlt
	}
	switch key {
	case keycode.ControlLeft, keycode.ControlRight:
		return kindCtrl
	case keycode.ShiftLeft, keycode.ShiftRight:
		return kindShift
	case keycode.Alt, keycode.AltGr:
		return kindAlt
	case keycode.MetaLeft, keycode.MetaRight:
		return kindMeta
	case keycode.CapsLock:
		return kindCaps
	default:
		return kindOther
	}
}

func (s *modifierState) modifier(kind keyKind) *atomic.Bool {
	switch kind {
	case kindCtrl:
		return &s.ctrl
	case kindShift:
		return &s.shift
	case kindAlt:
		return &s.alt
	case kindMeta:
		return &s.meta
	default:
		return nil
	}
}

// heal clears the modifier flags and capsHeld. otherKey is left alone; it
// resets on the next Caps Lock transition.
func (s *modifierState) heal() {
	s.ctrl.Store(false)
	s.shift.Store(false)
	s.alt.Store(false)
	s.meta.Store(false)
	s.capsHeld.Store(false)
}

func (s *modifierState) snapshot() State {
	return State{
		Ctrl:                s.ctrl.Load(),
		Shift:               s.shift.Load(),
		Alt:                 s.alt.Load(),
		Meta:                s.meta.Load(),
		CapsHeld:            s.capsHeld.Load(),
		OtherKeyDuringChord: s.otherKey.Load(),
		Replaying:           s.replaying.Load(),
		Frozen:              s.frozen.Load(),
	}
}
