package chord

import (
	"sync"

	"capschord/internal/keycode"
)

// Event is the snapshot handed to listeners: the pressed key and which
// modifiers were down at that moment.
type Event struct {
	Key   keycode.Key
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// Listener inspects a chord event and reports whether it consumed it.
// Listeners run on the keyboard hook thread and must return quickly.
type Listener func(Event) bool

// registry is the ordered, append-only listener list.
type registry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (r *registry) add(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *registry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.listeners)
	r.listeners = nil
	return n
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// dispatch invokes every listener in registration order and ORs the results.
// The slice header is taken under the read lock and the lock released before
// calling out, so a listener may register or clear without deadlocking the
// hook thread; such changes apply from the next event.
func (r *registry) dispatch(ev Event, onPanic func(any)) bool {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	consumed := false
	for _, l := range listeners {
		if invoke(l, ev, onPanic) {
			consumed = true
		}
	}
	return consumed
}

// invoke shields the hook from a panicking listener, which counts as "not consumed".
func invoke(l Listener, ev Event, onPanic func(any)) (consumed bool) {
	defer func() {
		if r := recover(); r != nil {
			consumed = false
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	return l(ev)
}
