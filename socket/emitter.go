package socket

import "sync"

type listener struct {
	id      ListenerID
	handler Handler
	once    bool
}

type emitter struct {
	mu       sync.Mutex
	nextID   ListenerID
	handlers map[Event][]listener
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[Event][]listener)}
}

func (e *emitter) on(event Event, handler Handler, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.handlers[event] = append(e.handlers[event], listener{id: e.nextID, handler: handler, once: once})
	return e.nextID
}

// off removes the given listeners, or every listener for event when ids is
// empty.
func (e *emitter) off(event Event, ids ...ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ids) == 0 {
		delete(e.handlers, event)
		return
	}

	drop := make(map[ListenerID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	e.filter(event, func(l listener) bool {
		_, ok := drop[l.id]
		return !ok
	})
}

// take snapshots the listeners for event in registration order and retires
// the once-listeners among them.
func (e *emitter) take(event Event) []listener {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.handlers[event]
	if len(current) == 0 {
		return nil
	}
	snapshot := append([]listener(nil), current...)
	e.filter(event, func(l listener) bool { return !l.once })
	return snapshot
}

func (e *emitter) count(event Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

func (e *emitter) filter(event Event, keep func(listener) bool) {
	current := e.handlers[event]
	kept := make([]listener, 0, len(current))
	for _, l := range current {
		if keep(l) {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.handlers, event)
		return
	}
	e.handlers[event] = kept
}
