// Package keycode translates between logical keys and Windows virtual-key codes.
//
// Translation from a raw code is total: codes without a logical name are
// carried losslessly as Unknown(code).
package keycode

import (
	"fmt"
	"strings"
)

// Key is a logical, layout-independent key identity.
// Known keys are small enum values; unknown raw codes are tagged with unknownBit.
type Key uint32

const unknownBit Key = 1 << 31

const (
	Alt Key = iota + 1
	AltGr
	Backspace
	CapsLock
	ControlLeft
	ControlRight
	Delete
	DownArrow
	End
	Escape
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	Home
	LeftArrow
	MetaLeft
	MetaRight
	PageDown
	PageUp
	Return
	RightArrow
	ShiftLeft
	ShiftRight
	Space
	Tab
	UpArrow
	PrintScreen
	ScrollLock
	Pause
	NumLock
	BackQuote
	Num1
	Num2
	Num3
	Num4
	Num5
	Num6
	Num7
	Num8
	Num9
	Num0
	Minus
	Equal
	KeyQ
	KeyW
	KeyE
	KeyR
	KeyT
	KeyY
	KeyU
	KeyI
	KeyO
	KeyP
	LeftBracket
	RightBracket
	KeyA
	KeyS
	KeyD
	KeyF
	KeyG
	KeyH
	KeyJ
	KeyK
	KeyL
	SemiColon
	Quote
	BackSlash
	IntlBackslash
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyB
	KeyN
	KeyM
	Comma
	Dot
	Slash
	Insert
	KpReturn
	KpMinus
	KpPlus
	KpMultiply
	KpDivide
	Kp0
	Kp1
	Kp2
	Kp3
	Kp4
	Kp5
	Kp6
	Kp7
	Kp8
	Kp9
	KpDelete
	Function
)

// Generic modifier codes. Low-level hooks normally report the sided variants,
// but injected input may carry these.
const (
	CodeShift   uint32 = 0x10
	CodeControl uint32 = 0x11
	CodeMenu    uint32 = 0x12
)

// Unknown wraps a raw code that has no logical name.
func Unknown(code uint32) Key {
	return unknownBit | Key(code)
}

// UnknownCode returns the wrapped raw code when k was produced by Unknown.
func (k Key) UnknownCode() (uint32, bool) {
	if k&unknownBit == 0 {
		return 0, false
	}
	return uint32(k &^ unknownBit), true
}

// FromCode translates a virtual-key code. It never fails.
func FromCode(code uint32) Key {
	if k, ok := keyByCode[code]; ok {
		return k
	}
	return Unknown(code)
}

// Code returns the virtual-key code for k. Keys that share or lack a code
// (KpReturn, Function) report false.
func (k Key) Code() (uint32, bool) {
	if code, ok := k.UnknownCode(); ok {
		return code, true
	}
	e, ok := entryByKey[k]
	if !ok || e.code == 0 {
		return 0, false
	}
	return e.code, true
}

// String returns the canonical key name, or "Unknown(0x..)" for wrapped codes.
func (k Key) String() string {
	if code, ok := k.UnknownCode(); ok {
		return fmt.Sprintf("Unknown(0x%02X)", code)
	}
	if e, ok := entryByKey[k]; ok {
		return e.name
	}
	return fmt.Sprintf("Key(%d)", uint32(k))
}

// IsModifierKey reports whether k is Ctrl, Shift, Alt, AltGr or Meta on either side.
func IsModifierKey(k Key) bool {
	switch k {
	case ControlLeft, ControlRight, Alt, AltGr, ShiftLeft, ShiftRight, MetaLeft, MetaRight:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so keys round-trip through config files.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// normalizeName folds case and strips separators so "Page Up", "page_up" and
// "PageUp" resolve to the same entry.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}
