package chord

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"capschord/internal/keycode"
)

const (
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkCapital  = 0x14
	vkA        = 0x41
	vkI        = 0x49
	vkU        = 0x55
	vkLWin     = 0x5B
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
)

// fakeKeyboard tracks physical state from the events the test feeds in.
// Setting forced makes it report a fixed answer instead.
type fakeKeyboard struct {
	mu     sync.Mutex
	held   Modifiers
	forced *Modifiers
}

func (k *fakeKeyboard) HeldModifiers() Modifiers {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.forced != nil {
		return *k.forced
	}
	return k.held
}

func (k *fakeKeyboard) apply(code uint32, down bool) {
	var bit Modifiers
	switch code {
	case vkControl, vkLControl, vkRControl:
		bit = ModCtrl
	case vkShift, vkLShift, vkRShift:
		bit = ModShift
	case vkMenu, vkLMenu, vkRMenu:
		bit = ModAlt
	case vkLWin, 0x5C:
		bit = ModMeta
	case vkCapital:
		bit = ModCapsLock
	default:
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if down {
		k.held |= bit
	} else {
		k.held &^= bit
	}
}

func (k *fakeKeyboard) force(m Modifiers) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.forced = &m
}

type fakeReplayer struct {
	calls atomic.Int32
	err   error
	panic bool
	block chan struct{}
}

func (r *fakeReplayer) ReplayCapsLock() error {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	if r.panic {
		panic("replay exploded")
	}
	return r.err
}

type harness struct {
	t        *testing.T
	engine   *Engine
	keyboard *fakeKeyboard
	replayer *fakeReplayer
	panics   atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		keyboard: &fakeKeyboard{},
		replayer: &fakeReplayer{},
	}
	h.engine = New(Options{
		Keyboard:        h.keyboard,
		Replayer:        h.replayer,
		OnListenerPanic: func(any) { h.panics.Add(1) },
	})
	return h
}

func (h *harness) down(code uint32) bool {
	h.keyboard.apply(code, true)
	return h.engine.HandleKey(RawEvent{Code: code, Down: true})
}

func (h *harness) up(code uint32) bool {
	h.keyboard.apply(code, false)
	return h.engine.HandleKey(RawEvent{Code: code, Down: false})
}

// tap presses and releases code and returns whether each half was swallowed.
func (h *harness) tap(code uint32) (bool, bool) {
	return h.down(code), h.up(code)
}

func (h *harness) waitReplayIdle() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.engine.Snapshot().Replaying {
		if time.Now().After(deadline) {
			h.t.Fatal("replay guard still set after 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) replays() int {
	return int(h.replayer.calls.Load())
}

type recorder struct {
	mu      sync.Mutex
	events  []Event
	consume bool
}

func (r *recorder) listen(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.consume
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestCapsTapAloneReplaysOnce(t *testing.T) {
	tests := []struct {
		name     string
		repeats  int
		sequence int
	}{
		{name: "single tap", repeats: 1, sequence: 1},
		{name: "auto-repeat while held", repeats: 5, sequence: 1},
		{name: "three taps", repeats: 1, sequence: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := &recorder{consume: true}
			h.engine.RegisterListener(rec.listen)

			for range tt.sequence {
				for range tt.repeats {
					if !h.down(vkCapital) {
						t.Fatal("caps lock keydown was forwarded")
					}
				}
				if !h.up(vkCapital) {
					t.Fatal("caps lock keyup was forwarded")
				}
				h.waitReplayIdle()
			}

			if got := h.replays(); got != tt.sequence {
				t.Errorf("replays = %d, want %d", got, tt.sequence)
			}
			if got := len(rec.snapshot()); got != 0 {
				t.Errorf("listener invoked %d times, want 0", got)
			}
		})
	}
}

func TestChordWithKeyDispatchesWithoutReplay(t *testing.T) {
	h := newHarness(t)
	first := &recorder{}
	second := &recorder{}
	h.engine.RegisterListener(first.listen)
	h.engine.RegisterListener(second.listen)

	h.down(vkCapital)
	h.down(vkLShift)
	if h.down(vkA) {
		t.Error("A keydown swallowed although no listener consumed it")
	}
	if h.up(vkA) {
		t.Error("A keyup swallowed")
	}
	h.up(vkLShift)
	h.up(vkCapital)
	h.waitReplayIdle()

	if got := h.replays(); got != 0 {
		t.Errorf("replays = %d, want 0", got)
	}
	for name, rec := range map[string]*recorder{"first": first, "second": second} {
		events := rec.snapshot()
		var keyEvents []Event
		for _, ev := range events {
			if ev.Key == keycode.KeyA {
				keyEvents = append(keyEvents, ev)
			}
		}
		if len(keyEvents) != 1 {
			t.Fatalf("%s listener saw %d KeyA events, want 1", name, len(keyEvents))
		}
		want := Event{Key: keycode.KeyA, Shift: true}
		if keyEvents[0] != want {
			t.Errorf("%s listener event = %+v, want %+v", name, keyEvents[0], want)
		}
	}
	if s := h.engine.Snapshot(); s.OtherKeyDuringChord || s.CapsHeld {
		t.Errorf("state after chord = %+v, want idle", s)
	}
}

func TestRegisterChordScenarios(t *testing.T) {
	tests := []struct {
		name      string
		key       keycode.Key
		modifiers []keycode.Key
		press     []uint32
		target    uint32
		wantCalls int
	}{
		{
			name:      "bare U",
			key:       keycode.KeyU,
			press:     nil,
			target:    vkU,
			wantCalls: 1,
		},
		{
			name:      "ctrl alt I",
			key:       keycode.KeyI,
			modifiers: []keycode.Key{keycode.ControlLeft, keycode.Alt},
			press:     []uint32{vkLControl, vkLMenu},
			target:    vkI,
			wantCalls: 1,
		},
		{
			name:      "right ctrl satisfies ctrl",
			key:       keycode.KeyU,
			modifiers: []keycode.Key{keycode.ControlLeft},
			press:     []uint32{vkRControl},
			target:    vkU,
			wantCalls: 1,
		},
		{
			name:      "extra shift breaks exact match",
			key:       keycode.KeyU,
			modifiers: []keycode.Key{keycode.ControlLeft},
			press:     []uint32{vkLControl, vkLShift},
			target:    vkU,
			wantCalls: 0,
		},
		{
			name:      "missing modifier",
			key:       keycode.KeyU,
			modifiers: []keycode.Key{keycode.ControlLeft, keycode.ShiftLeft},
			press:     []uint32{vkLControl},
			target:    vkU,
			wantCalls: 0,
		},
		{
			name:      "altgr needs ctrl alt and shift",
			key:       keycode.KeyU,
			modifiers: []keycode.Key{keycode.AltGr},
			press:     []uint32{vkLControl, vkRMenu, vkLShift},
			target:    vkU,
			wantCalls: 1,
		},
		{
			name:      "altgr without shift does not fire",
			key:       keycode.KeyU,
			modifiers: []keycode.Key{keycode.AltGr},
			press:     []uint32{vkLControl, vkRMenu},
			target:    vkU,
			wantCalls: 0,
		},
		{
			name:      "different key",
			key:       keycode.KeyU,
			target:    vkI,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var calls atomic.Int32
			h.engine.RegisterChord(tt.key, tt.modifiers, func() { calls.Add(1) })

			h.down(vkCapital)
			for _, code := range tt.press {
				if !h.down(code) {
					t.Errorf("modifier 0x%02X keydown during chord was forwarded", code)
				}
			}
			swallowed := h.down(tt.target)
			h.up(tt.target)
			for i := len(tt.press) - 1; i >= 0; i-- {
				if h.up(tt.press[i]) {
					t.Errorf("modifier 0x%02X keyup was swallowed", tt.press[i])
				}
			}
			h.up(vkCapital)
			h.waitReplayIdle()

			if got := int(calls.Load()); got != tt.wantCalls {
				t.Errorf("callback calls = %d, want %d", got, tt.wantCalls)
			}
			if swallowed != (tt.wantCalls > 0) {
				t.Errorf("target keydown swallowed = %v, want %v", swallowed, tt.wantCalls > 0)
			}
			if got := h.replays(); got != 0 {
				t.Errorf("replays = %d, want 0", got)
			}
		})
	}
}

func TestChordSnapshotForCtrlAltI(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	h.engine.RegisterListener(func(ev Event) bool {
		if ev.Key != keycode.KeyI {
			return false
		}
		return rec.listen(ev)
	})

	h.down(vkCapital)
	h.down(vkLControl)
	h.down(vkLMenu)
	h.down(vkI)

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("listener saw %d events, want 1", len(events))
	}
	want := Event{Key: keycode.KeyI, Ctrl: true, Alt: true}
	if events[0] != want {
		t.Errorf("event = %+v, want %+v", events[0], want)
	}
}

func TestRegisterChordMetaPanics(t *testing.T) {
	for _, meta := range []keycode.Key{keycode.MetaLeft, keycode.MetaRight} {
		t.Run(meta.String(), func(t *testing.T) {
			h := newHarness(t)
			defer func() {
				if recover() == nil {
					t.Fatal("RegisterChord with Meta did not panic")
				}
				if n := h.engine.ListenerCount(); n != 0 {
					t.Errorf("ListenerCount = %d after failed registration, want 0", n)
				}
			}()
			h.engine.RegisterChord(keycode.KeyU, []keycode.Key{meta}, func() {})
		})
	}
}

func TestRawListenerMatchesMeta(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.engine.RegisterListener(func(ev Event) bool {
		if ev.Key == keycode.KeyU && ev.Meta && !ev.Ctrl && !ev.Shift && !ev.Alt {
			calls.Add(1)
			return true
		}
		return false
	})

	h.down(vkCapital)
	h.down(vkLWin)
	if !h.down(vkU) {
		t.Error("meta chord keydown was forwarded")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestModifierKeydownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	for i := range 10 {
		h.down(vkLControl)
		if !h.engine.Snapshot().Ctrl {
			t.Fatalf("ctrl flag false after keydown #%d", i+1)
		}
	}
	h.down(vkRControl)
	h.down(vkControl)
	if !h.engine.Snapshot().Ctrl {
		t.Fatal("ctrl flag false after mixed ctrl keydowns")
	}
	h.up(vkLControl)
	if s := h.engine.Snapshot(); s.Ctrl {
		t.Errorf("ctrl flag still set after keyup: %+v", s)
	}
}

func TestGenericModifierCodes(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		flag func(State) bool
	}{
		{"VK_CONTROL", vkControl, func(s State) bool { return s.Ctrl }},
		{"VK_SHIFT", vkShift, func(s State) bool { return s.Shift }},
		{"VK_MENU", vkMenu, func(s State) bool { return s.Alt }},
		{"AltGr", vkRMenu, func(s State) bool { return s.Alt }},
		{"LWin", vkLWin, func(s State) bool { return s.Meta }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if h.down(tt.code) {
				t.Error("modifier keydown outside a chord was swallowed")
			}
			if !tt.flag(h.engine.Snapshot()) {
				t.Errorf("flag not set after keydown, state %+v", h.engine.Snapshot())
			}
			h.up(tt.code)
			if tt.flag(h.engine.Snapshot()) {
				t.Errorf("flag still set after keyup, state %+v", h.engine.Snapshot())
			}
		})
	}
}

func TestSelfHealClearsStaleFlags(t *testing.T) {
	h := newHarness(t)
	h.down(vkCapital)
	h.down(vkLControl)
	h.down(vkLShift)
	if s := h.engine.Snapshot(); !s.CapsHeld || !s.Ctrl || !s.Shift {
		t.Fatalf("setup state = %+v", s)
	}

	// The keyups never reach the engine.
	h.keyboard.force(0)
	rec := &recorder{consume: true}
	h.engine.RegisterListener(rec.listen)

	if h.down(vkA) {
		t.Error("A keydown swallowed after self-heal")
	}
	s := h.engine.Snapshot()
	if s.Ctrl || s.Shift || s.Alt || s.Meta || s.CapsHeld {
		t.Errorf("state after self-heal = %+v, want all modifier flags clear", s)
	}
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("listener invoked %d times after self-heal, want 0", got)
	}
}

func TestSelfHealSkippedWhileAnythingHeld(t *testing.T) {
	h := newHarness(t)
	h.down(vkLControl)
	h.keyboard.force(ModShift)
	h.down(vkA)
	if !h.engine.Snapshot().Ctrl {
		t.Error("ctrl cleared although the platform still reports a modifier held")
	}
}

func TestNilKeyboardDisablesSelfHeal(t *testing.T) {
	e := New(Options{})
	e.HandleKey(RawEvent{Code: vkLControl, Down: true})
	e.HandleKey(RawEvent{Code: vkA, Down: true})
	if !e.Snapshot().Ctrl {
		t.Error("ctrl cleared without a keyboard state source")
	}
}

func TestReplayGuardForwardsEvents(t *testing.T) {
	h := newHarness(t)
	h.replayer.block = make(chan struct{})
	rec := &recorder{consume: true}
	h.engine.RegisterListener(rec.listen)

	h.tap(vkCapital)
	if !h.engine.Snapshot().Replaying {
		t.Fatal("replay guard not raised synchronously on caps keyup")
	}

	// Synthetic replay events and anything else arrive while the guard is up.
	if h.down(vkCapital) || h.up(vkCapital) {
		t.Error("event swallowed while replay guard set")
	}
	if h.down(vkLControl) {
		t.Error("ctrl keydown swallowed while replay guard set")
	}
	if s := h.engine.Snapshot(); s.CapsHeld || s.Ctrl {
		t.Errorf("flags mutated under replay guard: %+v", s)
	}

	close(h.replayer.block)
	h.waitReplayIdle()

	if got := h.replays(); got != 1 {
		t.Errorf("replays = %d, want 1", got)
	}
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("listener invoked %d times, want 0", got)
	}
}

func TestReplayFailureClearsGuard(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		panic bool
	}{
		{name: "error", err: errors.New("SendInput failed")},
		{name: "panic", panic: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.replayer.err = tt.err
			h.replayer.panic = tt.panic

			h.tap(vkCapital)
			h.waitReplayIdle()
			h.tap(vkCapital)
			h.waitReplayIdle()

			if got := h.replays(); got != 2 {
				t.Errorf("replays = %d, want 2", got)
			}
		})
	}
}

func TestNilReplayerSkipsReplay(t *testing.T) {
	e := New(Options{})
	e.HandleKey(RawEvent{Code: vkCapital, Down: true})
	if !e.HandleKey(RawEvent{Code: vkCapital, Down: false}) {
		t.Error("caps keyup forwarded")
	}
	if e.Snapshot().Replaying {
		t.Error("replay guard raised without a replayer")
	}
}

func TestFreezeStopsTrackingAndDispatch(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.engine.RegisterChord(keycode.KeyU, nil, func() { calls.Add(1) })

	h.engine.Freeze()
	if !h.engine.Frozen() {
		t.Fatal("Frozen() = false after Freeze")
	}
	down, up := h.tap(vkCapital)
	if down || up {
		t.Error("caps lock swallowed while frozen")
	}
	h.down(vkCapital)
	if h.down(vkU) {
		t.Error("U swallowed while frozen")
	}
	h.up(vkU)
	h.up(vkCapital)
	if s := h.engine.Snapshot(); s.CapsHeld || s.Replaying || !s.Frozen {
		t.Errorf("state while frozen = %+v", s)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times while frozen", got)
	}
	if got := h.replays(); got != 0 {
		t.Errorf("replays while frozen = %d, want 0", got)
	}

	h.engine.Unfreeze()
	h.down(vkCapital)
	if !h.down(vkU) {
		t.Error("U forwarded after Unfreeze")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("callback calls after Unfreeze = %d, want 1", got)
	}
}

func TestFreezeDuringReplayKeepsGuardsIndependent(t *testing.T) {
	h := newHarness(t)
	h.replayer.block = make(chan struct{})

	h.tap(vkCapital)
	h.engine.Freeze()
	close(h.replayer.block)
	h.waitReplayIdle()

	if !h.engine.Frozen() {
		t.Error("replay completion cleared the freeze")
	}
	h.engine.Unfreeze()
	if h.engine.Snapshot().Replaying {
		t.Error("Unfreeze touched the replay guard")
	}
}

func TestListenersAreNotShortCircuited(t *testing.T) {
	h := newHarness(t)
	recs := []*recorder{{consume: true}, {consume: true}, {consume: false}}
	for _, r := range recs {
		h.engine.RegisterListener(r.listen)
	}

	h.down(vkCapital)
	if !h.down(vkU) {
		t.Error("U forwarded although a listener consumed it")
	}
	for i, r := range recs {
		if got := len(r.snapshot()); got != 1 {
			t.Errorf("listener %d invoked %d times, want 1", i, got)
		}
	}
}

func TestPanickingListenerCountsAsNotConsumed(t *testing.T) {
	tests := []struct {
		name         string
		others       []*recorder
		wantSwallowed bool
	}{
		{name: "alone", wantSwallowed: false},
		{name: "with consuming listener", others: []*recorder{{consume: true}}, wantSwallowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.RegisterListener(func(Event) bool { panic("listener bug") })
			for _, r := range tt.others {
				h.engine.RegisterListener(r.listen)
			}

			h.down(vkCapital)
			if got := h.down(vkU); got != tt.wantSwallowed {
				t.Errorf("swallowed = %v, want %v", got, tt.wantSwallowed)
			}
			if got := h.panics.Load(); got != 1 {
				t.Errorf("OnListenerPanic calls = %d, want 1", got)
			}
			for _, r := range tt.others {
				if got := len(r.snapshot()); got != 1 {
					t.Errorf("later listener invoked %d times, want 1", got)
				}
			}
		})
	}
}

func TestClearListeners(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{consume: true}
	h.engine.RegisterListener(rec.listen)
	h.engine.RegisterChord(keycode.KeyU, nil, func() {})
	if n := h.engine.ListenerCount(); n != 2 {
		t.Fatalf("ListenerCount = %d, want 2", n)
	}

	h.engine.ClearListeners()
	if n := h.engine.ListenerCount(); n != 0 {
		t.Fatalf("ListenerCount after clear = %d, want 0", n)
	}
	h.down(vkCapital)
	if h.down(vkU) {
		t.Error("U swallowed with no listeners")
	}
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("cleared listener invoked %d times", got)
	}
}

func TestListenerMayRegisterDuringDispatch(t *testing.T) {
	h := newHarness(t)
	late := &recorder{consume: true}
	var once sync.Once
	h.engine.RegisterListener(func(Event) bool {
		once.Do(func() { h.engine.RegisterListener(late.listen) })
		return false
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.down(vkCapital)
		h.down(vkU)
		h.up(vkU)
		h.down(vkI)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch deadlocked on re-entrant registration")
	}

	events := late.snapshot()
	if len(events) != 1 || events[0].Key != keycode.KeyI {
		t.Errorf("late listener events = %+v, want only KeyI", events)
	}
}

func TestKeysOutsideChordAreForwarded(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{consume: true}
	h.engine.RegisterListener(rec.listen)

	for _, code := range []uint32{vkU, vkLControl, vkLShift, vkA} {
		if down, up := h.tap(code); down || up {
			t.Errorf("0x%02X swallowed outside a chord", code)
		}
	}
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("listener invoked %d times outside a chord", got)
	}
}

func TestUnknownKeyDuringChordMarksOtherKey(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	h.engine.RegisterListener(rec.listen)

	h.down(vkCapital)
	h.tap(0xE8)
	h.up(vkCapital)
	h.waitReplayIdle()

	if got := h.replays(); got != 0 {
		t.Errorf("replays = %d, want 0", got)
	}
	events := rec.snapshot()
	if len(events) != 1 || events[0].Key != keycode.Unknown(0xE8) {
		t.Errorf("events = %+v, want one Unknown(0xE8)", events)
	}
}
