//go:build windows

package hook

import (
	"fmt"
	"unsafe"
)

var (
	procSendInput        = user32DLL.NewProc("SendInput")
	procGetAsyncKeyState = user32DLL.NewProc("GetAsyncKeyState")
)

const (
	inputKeyboard  = 1
	keyeventfKeyUp = 0x0002
	vkCapital      = 0x14
)

// keybdInput mirrors KEYBDINPUT.
type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// input mirrors INPUT with the keyboard member of the union. padding covers
// the larger MOUSEINPUT member so the size matches on 32-bit and 64-bit.
type input struct {
	inputType uint32
	ki        keybdInput
	padding   [8]byte
}

// Replayer injects a Caps Lock press and release through SendInput.
type Replayer struct{}

// ReplayCapsLock implements chord.Replayer.
func (Replayer) ReplayCapsLock() error {
	inputs := [2]input{
		{inputType: inputKeyboard, ki: keybdInput{wVk: vkCapital}},
		{inputType: inputKeyboard, ki: keybdInput{wVk: vkCapital, dwFlags: keyeventfKeyUp}},
	}
	sent, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if sent != uintptr(len(inputs)) {
		return fmt.Errorf("SendInput sent %d of %d events: %w", sent, len(inputs), errnoOr(err, "SendInput blocked"))
	}
	return nil
}

func asyncKeyDown(code uint32) bool {
	state, _, _ := procGetAsyncKeyState.Call(uintptr(code))
	return uint16(state)&0x8000 != 0
}
