package session

import (
	"slices"
	"sync"
)

// Emitter dispatches session lifecycle events to subscribers. Listeners run
// synchronously on the emitting goroutine in registration order. The zero
// value is ready to use.
type Emitter struct {
	login   listeners[Session]
	logout  listeners[string]
	refresh listeners[Session]
	link    listeners[string]
}

// OnLogin registers fn for login events. The returned func unsubscribes.
func (e *Emitter) OnLogin(fn func(Session)) (unsubscribe func()) { return e.login.add(fn) }

// OnLogout registers fn for logout events, which carry a human-readable reason.
func (e *Emitter) OnLogout(fn func(reason string)) (unsubscribe func()) { return e.logout.add(fn) }

// OnRefresh registers fn for successful token refreshes.
func (e *Emitter) OnRefresh(fn func(Session)) (unsubscribe func()) { return e.refresh.add(fn) }

// OnLink registers fn for provider link events.
func (e *Emitter) OnLink(fn func(provider string)) (unsubscribe func()) { return e.link.add(fn) }

// EmitLogin calls the login listeners, each with its own copy of s.
func (e *Emitter) EmitLogin(s Session) { e.login.emit(s, Session.Clone) }

// EmitLogout calls the logout listeners with reason.
func (e *Emitter) EmitLogout(reason string) { e.logout.emit(reason, nil) }

// EmitRefresh calls the refresh listeners, each with its own copy of s.
func (e *Emitter) EmitRefresh(s Session) { e.refresh.emit(s, Session.Clone) }

// EmitLink calls the link listeners with provider.
func (e *Emitter) EmitLink(provider string) { e.link.emit(provider, nil) }

type listener[T any] struct {
	id int
	fn func(T)
}

type listeners[T any] struct {
	mu     sync.RWMutex
	nextID int
	fns    []listener[T]
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.fns = append(l.fns, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.fns = slices.DeleteFunc(l.fns, func(x listener[T]) bool { return x.id == id })
		})
	}
}

// emit calls every listener with v. When clone is set each listener receives
// its own copy.
func (l *listeners[T]) emit(v T, clone func(T) T) {
	l.mu.RLock()
	fns := slices.Clone(l.fns)
	l.mu.RUnlock()

	for _, x := range fns {
		if clone != nil {
			x.fn(clone(v))
			continue
		}
		x.fn(v)
	}
}
