package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Policy decides which entry is discarded when a bounded queue is full.
type Policy int

const (
	DropOldest Policy = iota
	DropNewest
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return -1, errors.New("policy not supported")
	}
}

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// Queue is a FIFO queue. A capacity of zero means unbounded.
// Push never blocks.
type Queue[T any] struct {
	items    []T
	capacity int
	policy   Policy
	dropped  uint64
	closed   bool

	notify chan struct{}
	done   chan struct{}
	sync.Mutex
}

func New[T any](capacity int, policy Policy) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}

	return &Queue[T]{
		items:    make([]T, 0),
		capacity: capacity,
		policy:   policy,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v. It reports false when the queue is closed or v was
// dropped by the DropNewest policy.
func (q *Queue[T]) Push(v T) bool {
	q.Lock()
	if q.closed {
		q.Unlock()
		return false
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.dropped++

		if q.policy == DropNewest {
			q.Unlock()
			return false
		}

		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
	}

	q.items = append(q.items, v)
	q.Unlock()

	q.signal()
	return true
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the head without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.Lock()
	defer q.Unlock()

	return q.pop()
}

func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.closed || len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	if len(q.items) > 0 {
		q.signal() // wake the next waiter
	}

	return v, true
}

// Pop waits until an entry is available, ctx is done, or the queue is closed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	for {
		q.Lock()
		if q.closed {
			q.Unlock()
			return zero, ErrClosed
		}

		v, ok := q.pop()
		q.Unlock()
		if ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()

		case <-q.done:
			return zero, ErrClosed

		case <-q.notify:
		}
	}
}

// Wait blocks until the queue is non-empty without removing anything.
func (q *Queue[T]) Wait(ctx context.Context) error {
	for {
		q.Lock()
		if q.closed {
			q.Unlock()
			return ErrClosed
		}

		if len(q.items) > 0 {
			q.Unlock()
			q.signal() // hand the wakeup on to a Pop
			return nil
		}
		q.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-q.done:
			return ErrClosed

		case <-q.notify:
		}
	}
}

// Close discards queued entries, returning them, and releases every waiter.
func (q *Queue[T]) Close() []T {
	q.Lock()
	defer q.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)

	remaining := q.items
	q.items = nil
	return remaining
}

func (q *Queue[T]) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Dropped() uint64 {
	q.Lock()
	defer q.Unlock()
	return q.dropped
}

func (q *Queue[T]) Closed() bool {
	q.Lock()
	defer q.Unlock()
	return q.closed
}

// Done is closed when the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}
