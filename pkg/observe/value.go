// Package observe provides a read-only observable value whose subscribers
// see every published snapshot, in publish order, without coalescing.
package observe

import "sync"

// Reader is the read-only view of a Value handed to collaborators.
type Reader[T any] interface {
	// Get returns the most recently published snapshot.
	Get() T
	// Version increments once per published snapshot.
	Version() uint64
	// Subscribe registers fn for every future snapshot and returns a func
	// that removes it. The current snapshot is not replayed; use Get.
	Subscribe(fn func(T)) (unsubscribe func())
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Value holds a snapshot and fans it out to subscribers.
//
// Owners that guard their own state with a mutex call Stage while holding
// it, so queued snapshots follow mutation order, then call Flush after
// unlocking. Flush drains the queue on a single dispatcher at a time, so
// subscribers may call back into the owner without deadlocking; such nested
// snapshots are delivered after the current one.
type Value[T any] struct {
	mu          sync.Mutex
	current     T
	version     uint64
	nextID      int
	subs        []subscription[T]
	queue       []T
	dispatching bool
	onPanic     []func(recovered any)
}

// New returns a Value holding initial at version 0.
func New[T any](initial T) *Value[T] {
	return &Value[T]{current: initial}
}

var _ Reader[int] = (*Value[int])(nil)

// Get returns the latest staged snapshot.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Version returns the number of snapshots staged so far.
func (v *Value[T]) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Subscribe implements Reader.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextID++
	id := v.nextID
	v.subs = append(v.subs, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { v.unsubscribe(id) })
	}
}

// OnPanic registers a hook invoked when a subscriber panics. The panic is
// recovered and the remaining subscribers still run.
func (v *Value[T]) OnPanic(fn func(recovered any)) {
	v.mu.Lock()
	v.onPanic = append(v.onPanic, fn)
	v.mu.Unlock()
}

// Set stages val and flushes immediately.
func (v *Value[T]) Set(val T) {
	v.Stage(val)
	v.Flush()
}

// Stage records val as the current snapshot and queues it for delivery.
func (v *Value[T]) Stage(val T) {
	v.mu.Lock()
	v.current = val
	v.version++
	v.queue = append(v.queue, val)
	v.mu.Unlock()
}

// Flush delivers queued snapshots. If another goroutine (or an outer frame
// of this one) is already delivering, Flush returns and leaves the queue to
// that dispatcher.
func (v *Value[T]) Flush() {
	v.mu.Lock()
	if v.dispatching {
		v.mu.Unlock()
		return
	}
	v.dispatching = true
	v.mu.Unlock()

	for {
		v.mu.Lock()
		if len(v.queue) == 0 {
			v.dispatching = false
			v.queue = nil
			v.mu.Unlock()
			return
		}
		next := v.queue[0]
		v.queue = v.queue[1:]
		subs := make([]subscription[T], len(v.subs))
		copy(subs, v.subs)
		v.mu.Unlock()

		for _, s := range subs {
			v.deliver(s.fn, next)
		}
	}
}

func (v *Value[T]) deliver(fn func(T), val T) {
	defer func() {
		if r := recover(); r != nil {
			v.runOnPanic(r)
		}
	}()
	fn(val)
}

func (v *Value[T]) runOnPanic(recovered any) {
	v.mu.Lock()
	hooks := make([]func(any), len(v.onPanic))
	copy(hooks, v.onPanic)
	v.mu.Unlock()

	for _, fn := range hooks {
		func() {
			defer func() { recover() }() //nolint:errcheck
			fn(recovered)
		}()
	}
}

func (v *Value[T]) unsubscribe(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subs {
		if s.id == id {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}
