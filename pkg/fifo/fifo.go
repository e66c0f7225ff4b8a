// Package fifo contains a bounded FIFO queue used to exchange frames between routines.
package fifo

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrFull is returned by Push when the queue is full and non-blocking.
	ErrFull = errors.New("queue is full")

	// ErrEmpty is returned by Pull when the queue is empty.
	ErrEmpty = errors.New("queue is empty")

	// ErrTimeout is returned by PullTimeout when no item arrived in time.
	ErrTimeout = errors.New("timed out")

	// ErrClosed is returned when the queue is closed.
	ErrClosed = errors.New("queue is closed")
)

// Queue is a bounded multi-producer FIFO queue.
// When full, Push blocks or fails, depending on the blocking mode.
// It never overwrites items.
type Queue[T any] struct {
	// called on every item that is still queued when Close() is called.
	OnDiscard func(T)

	mutex     sync.Mutex
	buffer    []T
	readIndex int
	count     int
	blocking  bool
	closed    bool
	ev        event
}

// New allocates a Queue in blocking mode.
func New[T any](size int) (*Queue[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be greater than zero")
	}

	return &Queue[T]{
		buffer:   make([]T, size),
		blocking: true,
		ev:       newEvent(),
	}, nil
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buffer)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count
}

// SetBlocking sets the blocking mode.
// Switching to non-blocking mode wakes up producers waiting in Push().
func (q *Queue[T]) SetBlocking(v bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.blocking = v
	q.ev.signal()
}

// Blocking returns the blocking mode.
func (q *Queue[T]) Blocking() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.blocking
}

// Close closes the queue and discards queued items.
func (q *Queue[T]) Close() {
	q.mutex.Lock()

	if q.closed {
		q.mutex.Unlock()
		return
	}

	q.closed = true
	pending := make([]T, 0, q.count)
	for q.count > 0 {
		pending = append(pending, q.take())
	}
	q.ev.signal()

	q.mutex.Unlock()

	if q.OnDiscard != nil {
		for _, v := range pending {
			q.OnDiscard(v)
		}
	}
}

// Push appends an item at the end of the queue.
func (q *Queue[T]) Push(v T) error {
	q.mutex.Lock()

	for {
		if q.closed {
			q.mutex.Unlock()
			return ErrClosed
		}

		if q.count < len(q.buffer) {
			q.buffer[(q.readIndex+q.count)%len(q.buffer)] = v
			q.count++
			q.ev.signal()
			q.mutex.Unlock()
			return nil
		}

		if !q.blocking {
			q.mutex.Unlock()
			return ErrFull
		}

		ch := q.ev.wait()
		q.mutex.Unlock()
		<-ch
		q.mutex.Lock()
	}
}

// Pull removes the item at the beginning of the queue without waiting.
func (q *Queue[T]) Pull() (T, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.count == 0 {
		var zero T
		if q.closed {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}

	v := q.take()
	q.ev.signal()
	return v, nil
}

// PullTimeout removes the item at the beginning of the queue,
// waiting up to the given duration.
func (q *Queue[T]) PullTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	return q.pull(timer.C)
}

// PullWait removes the item at the beginning of the queue,
// waiting until one is available or the queue is closed.
func (q *Queue[T]) PullWait() (T, error) {
	return q.pull(nil)
}

func (q *Queue[T]) pull(timeout <-chan time.Time) (T, error) {
	q.mutex.Lock()

	for {
		if q.count > 0 {
			v := q.take()
			q.ev.signal()
			q.mutex.Unlock()
			return v, nil
		}

		if q.closed {
			q.mutex.Unlock()
			var zero T
			return zero, ErrClosed
		}

		ch := q.ev.wait()
		q.mutex.Unlock()

		select {
		case <-ch:
		case <-timeout:
			var zero T
			return zero, ErrTimeout
		}

		q.mutex.Lock()
	}
}

func (q *Queue[T]) take() T {
	var zero T
	v := q.buffer[q.readIndex]
	q.buffer[q.readIndex] = zero
	q.readIndex = (q.readIndex + 1) % len(q.buffer)
	q.count--
	return v
}
