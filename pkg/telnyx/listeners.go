package telnyx

import (
	"log/slog"
	"sync"
)

// ListenerList is an ordered fan-out registry. Add returns an unregister
// func; delivery is in registration order; a panicking listener is isolated
// so the remaining listeners still get notified. The Call Coordinator reuses
// the same contract for its own status listeners.
type ListenerList[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns a func that removes it again. The returned
// func may be called from within another listener's callback.
func (l *ListenerList[T]) Add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[T]{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers v to every registered listener. The registry snapshot is
// taken up front so listeners can unregister themselves (or others) while a
// notification is in flight. A listener that was unregistered before its
// turn is skipped.
func (l *ListenerList[T]) Notify(log *slog.Logger, v T) {
	l.mu.Lock()
	snapshot := make([]listenerEntry[T], len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	for _, e := range snapshot {
		if !l.registered(e.id) {
			continue
		}
		invoke(log, e.fn, v)
	}
}

// Clear drops every listener.
func (l *ListenerList[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Len reports the number of registered listeners.
func (l *ListenerList[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ListenerList[T]) registered(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

func invoke[T any](log *slog.Logger, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("listener panicked", "panic", r)
			}
		}
	}()
	fn(v)
}
