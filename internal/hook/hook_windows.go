//go:build windows

package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"capschord/internal/chord"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32DLL.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32DLL.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32DLL.NewProc("CallNextHookEx")
	procGetMessageW         = user32DLL.NewProc("GetMessageW")
	procTranslateMessage    = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW    = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW        = user32DLL.NewProc("PeekMessageW")
)

const (
	whKeyboardLL = 13
	hcAction     = 0

	wmQuit       = 0x0012
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	pmNoRemove = 0x0000

	stopTimeout = 2 * time.Second
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT from winuser.h.
type kbdLLHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct. The layout must match on both
// 32-bit and 64-bit Windows.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// runner is the state of one Run call.
type runner struct {
	handler  Handler
	keyboard *Keyboard
	threadID atomic.Uint32
	ready    chan struct{}
	done     chan struct{}
}

// active is the process-wide handle through which the hook procedure reaches
// its handler. SetWindowsHookExW takes a bare function pointer with no
// context argument, so this is the one package-level mutable in the module.
var active atomic.Pointer[runner]

var (
	callbackOnce sync.Once
	callbackPtr  uintptr
)

// Run installs the WH_KEYBOARD_LL hook and pumps the message loop on the
// calling goroutine's OS thread until Stop is called. Install failure is
// returned immediately. keyboard, when non-nil, is told about every hook
// decision so it can report swallowed keys as held.
func Run(h Handler, keyboard *Keyboard) error {
	if h == nil {
		return errors.New("hook handler is required")
	}
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}

	r := &runner{
		handler:  h,
		keyboard: keyboard,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if !active.CompareAndSwap(nil, r) {
		return ErrAlreadyRunning
	}
	defer active.CompareAndSwap(r, nil)
	defer close(r.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.threadID.Store(windows.GetCurrentThreadId())

	// PeekMessageW creates the thread message queue so that Stop can post
	// WM_QUIT before the first GetMessageW call.
	var qmsg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		return fmt.Errorf("GetModuleHandleEx failed: %w", err)
	}

	if keyboard != nil {
		keyboard.reset()
	}
	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(hookProc)
	})
	hhook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, callbackPtr, uintptr(module), 0)
	if hhook == 0 {
		return fmt.Errorf("SetWindowsHookExW(WH_KEYBOARD_LL) failed: %w", errnoOr(err, "SetWindowsHookExW failed"))
	}
	defer func() {
		if res, _, err := procUnhookWindowsHookEx.Call(hhook); res == 0 {
			slog.Error("[hook] DEBUG UnhookWindowsHookEx failed", "error", err)
		}
	}()

	slog.Info("[hook] keyboard hook installed", "threadID", r.threadID.Load())
	close(r.ready)

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			return fmt.Errorf("GetMessageW failed: %w", errnoOr(lastErr, "GetMessageW failed"))
		case 0:
			slog.Info("[hook] message loop received WM_QUIT, exiting")
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

// Stop posts WM_QUIT to the hook thread and waits for Run to return. It is a
// no-op when no hook is running. Called from the hook thread itself (for
// example by a listener) it posts without waiting.
func Stop() error {
	r := active.Load()
	if r == nil {
		return nil
	}

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-r.ready:
	case <-r.done:
		return nil
	case <-timer.C:
		return errors.New("keyboard hook did not become ready before stop timeout")
	}

	threadID := r.threadID.Load()
	res, _, err := procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
	if res == 0 {
		return fmt.Errorf("PostThreadMessageW(WM_QUIT) failed: %w", errnoOr(err, "PostThreadMessageW failed"))
	}
	if windows.GetCurrentThreadId() == threadID {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-timer.C:
		slog.Warn("[hook] DEBUG message loop stop timed out, thread may leak", "threadID", threadID)
		return errors.New("keyboard hook message loop stop timed out")
	}
}

func hookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if r := active.Load(); r != nil && r.decide(wParam, lParam) {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

func (r *runner) decide(wParam, lParam uintptr) bool {
	var down bool
	switch wParam {
	case wmKeyDown, wmSysKeyDown:
		down = true
	case wmKeyUp, wmSysKeyUp:
	default:
		return false
	}

	info := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
	ev := chord.RawEvent{
		Code:     info.vkCode,
		ScanCode: info.scanCode,
		Flags:    info.flags,
		Time:     info.time,
		Down:     down,
	}

	swallow := r.handle(ev)
	if r.keyboard != nil {
		r.keyboard.observe(ev.Code, ev.Down, swallow)
	}
	return swallow
}

// handle keeps a handler panic from unwinding into user32. The event is
// forwarded when that happens.
func (r *runner) handle(ev chord.RawEvent) (swallow bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[hook] handler panicked, forwarding event",
				"panic", rec,
				"vkCode", ev.Code,
				"stack", string(debug.Stack()),
			)
			swallow = false
		}
	}()
	return r.handler.HandleKey(ev)
}

func errnoOr(err error, fallback string) error {
	if err == nil || err == windows.Errno(0) {
		return errors.New(fallback)
	}
	return err
}
