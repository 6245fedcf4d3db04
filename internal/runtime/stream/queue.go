// Package stream bridges a push-based producer onto a pull-based iterator
// through a bounded queue.
package stream

import (
	"context"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 1000

type item[T any] struct {
	value     T
	tombstone bool
}

// Queue is a fixed-capacity FIFO shared by exactly one producer and one
// Bridge. A full queue blocks the producer.
type Queue[T any] struct {
	ch chan item[T]
}

// NewQueue returns a queue holding at most capacity items. A capacity below
// one means DefaultCapacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{ch: make(chan item[T], capacity)}
}

// Put appends v, waiting while the queue is full. It returns ctx.Err() when
// ctx ends first.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	return q.put(ctx, item[T]{value: v})
}

// PutTombstone appends the end-of-stream marker.
func (q *Queue[T]) PutTombstone(ctx context.Context) error {
	return q.put(ctx, item[T]{tombstone: true})
}

func (q *Queue[T]) put(ctx context.Context, it item[T]) error {
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items, tombstone included.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
