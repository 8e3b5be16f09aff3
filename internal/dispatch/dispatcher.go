// Package dispatch implements the typed publish/subscribe registry that the
// session components use to consume the realtime event stream.
package dispatch

import (
	"log"
	"sync"
	"unsafe"
)

// Handler receives the decoded message for one event occurrence.
type Handler func(msg any)

type subscription struct {
	key uintptr // function identity, for Off and duplicate suppression
	fn  Handler
}

// handlerKey returns a Handler value's identity: the address of its
// underlying func object. Two references to the same declared function or
// the same closure variable share a key; distinct closures created at the
// same source location do not. Method values get a fresh object per mention,
// so they should be removed via the unsubscribe func On returns rather than
// by a second Off(event, obj.Method) expression.
func handlerKey(fn Handler) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

// Dispatcher maps event names to subscriber lists. Delivery is synchronous
// and in registration order. A panicking subscriber is isolated and logged;
// siblings still fire.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[string][]subscription
}

func New() *Dispatcher {
	return &Dispatcher{subs: make(map[string][]subscription)}
}

// On registers fn for event and returns its unsubscribe function.
// Registering the same (event, fn) pair twice does not double-deliver.
func (d *Dispatcher) On(event string, fn Handler) func() {
	key := handlerKey(fn)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs[event] {
		if sub.key == key {
			return func() { d.Off(event, fn) }
		}
	}
	d.subs[event] = append(d.subs[event], subscription{key: key, fn: fn})
	return func() { d.Off(event, fn) }
}

// Off removes exactly the (event, fn) registration, leaving siblings intact.
func (d *Dispatcher) Off(event string, fn Handler) {
	key := handlerKey(fn)

	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[event]
	for i, sub := range subs {
		if sub.key == key {
			d.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners clears an entire event's subscriber set.
func (d *Dispatcher) RemoveAllListeners(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, event)
}

// Emit delivers msg to every subscriber currently registered for event.
func (d *Dispatcher) Emit(event string, msg any) {
	d.mu.Lock()
	subs := make([]subscription, len(d.subs[event]))
	copy(subs, d.subs[event])
	d.mu.Unlock()

	for _, sub := range subs {
		deliver(event, sub.fn, msg)
	}
}

func deliver(event string, fn Handler, msg any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: subscriber for %q panicked: %v", event, r)
		}
	}()
	fn(msg)
}

// SubscriberCount reports the number of registrations for event.
func (d *Dispatcher) SubscriberCount(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[event])
}
