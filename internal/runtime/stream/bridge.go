package stream

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds how long a pull waits for the next item.
const DefaultTimeout = time.Second

// State is the lifecycle position of a Bridge.
type State int32

const (
	// StateCreated means nothing has been pulled yet.
	StateCreated State = iota
	// StateActive means the last pull yielded an item.
	StateActive
	// StateDraining means a pull is waiting on the queue.
	StateDraining
	// StateDone means the sequence has ended.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// EndReason tells why a sequence ended. None of them is an error; callers
// that want to retry after a quiet period can tell EndTimeout apart.
type EndReason int32

const (
	EndNone EndReason = iota
	EndTombstone
	EndTimeout
	EndCanceled
)

func (r EndReason) String() string {
	switch r {
	case EndTombstone:
		return "tombstone"
	case EndTimeout:
		return "timeout"
	case EndCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// CancellationGuard is checked before every pull.
type CancellationGuard interface {
	Canceled() bool
}

// doneGuard is implemented by guards that can also wake a waiting pull.
type doneGuard interface {
	Done() <-chan struct{}
}

type contextGuard struct {
	ctx context.Context
}

// ContextGuard reports cancellation of ctx.
func ContextGuard(ctx context.Context) CancellationGuard {
	return contextGuard{ctx: ctx}
}

func (g contextGuard) Canceled() bool {
	return g.ctx.Err() != nil
}

func (g contextGuard) Done() <-chan struct{} {
	return g.ctx.Done()
}

// GuardFunc adapts a function to CancellationGuard.
type GuardFunc func() bool

func (f GuardFunc) Canceled() bool { return f() }

// Option customises a Bridge.
type Option func(*options)

type options struct {
	release func()
}

// WithRelease registers fn to run once when the bridge reaches DONE or is
// closed, typically to stop the producer.
func WithRelease(fn func()) Option {
	return func(o *options) {
		o.release = fn
	}
}

// Bridge pulls items from a Queue one at a time. It serves a single
// consumer; Next must not be called concurrently.
type Bridge[T any] struct {
	queue   *Queue[T]
	guard   CancellationGuard
	timeout time.Duration

	state   atomic.Int32
	reason  atomic.Int32
	release func()
	once    sync.Once
}

// NewBridge returns a bridge over q. A non-positive timeout means
// DefaultTimeout and a nil guard never cancels.
func NewBridge[T any](q *Queue[T], guard CancellationGuard, timeout time.Duration, opts ...Option) *Bridge[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge[T]{queue: q, guard: guard, timeout: timeout, release: o.release}
}

// Finished returns a bridge that yields nothing.
func Finished[T any]() *Bridge[T] {
	b := &Bridge[T]{}
	b.finish(EndTombstone)
	return b
}

// Next returns the next item. The boolean is false once the sequence has
// ended, by tombstone, timeout or cancellation.
func (b *Bridge[T]) Next() (T, bool) {
	var zero T
	if b.State() == StateDone {
		return zero, false
	}
	if b.guard != nil && b.guard.Canceled() {
		b.finish(EndCanceled)
		return zero, false
	}

	b.state.Store(int32(StateDraining))

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var done <-chan struct{}
	if g, ok := b.guard.(doneGuard); ok {
		done = g.Done()
	}

	select {
	case it := <-b.queue.ch:
		if it.tombstone {
			b.finish(EndTombstone)
			return zero, false
		}
		b.state.Store(int32(StateActive))
		return it.value, true
	case <-timer.C:
		b.finish(EndTimeout)
	case <-done:
		b.finish(EndCanceled)
	}
	return zero, false
}

// All returns the remaining items as a sequence. Stopping the iteration
// early closes the bridge.
func (b *Bridge[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := b.Next()
			if !ok {
				return
			}
			if !yield(v) {
				b.Close()
				return
			}
		}
	}
}

// Close ends the sequence as canceled unless it already ended.
func (b *Bridge[T]) Close() {
	if b.State() != StateDone {
		b.finish(EndCanceled)
	}
}

func (b *Bridge[T]) State() State {
	return State(b.state.Load())
}

// EndReason reports why the sequence ended, or EndNone while it is open.
func (b *Bridge[T]) EndReason() EndReason {
	return EndReason(b.reason.Load())
}

func (b *Bridge[T]) finish(reason EndReason) {
	b.once.Do(func() {
		b.reason.Store(int32(reason))
		b.state.Store(int32(StateDone))
		if b.release != nil {
			b.release()
		}
	})
}
