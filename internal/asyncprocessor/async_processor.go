// Package asyncprocessor contains an asynchronous processor.
package asyncprocessor

import (
	"context"

	"github.com/bluenviron/gaclient/pkg/fifo"
)

// Processor is an asynchronous queue processor
// that detaches the routine that is sending items
// from the routine that is processing them.
type Processor[T any] struct {
	BufferSize int

	// called by the processor routine for each item, in order.
	// Returning an error stops the processor.
	OnItem func(T) error

	// called on items that were pushed but not processed.
	// It defaults to a no-op.
	OnDiscard func(T)

	OnError func(context.Context, error)

	running   bool
	buffer    *fifo.Queue[T]
	ctx       context.Context
	ctxCancel func()

	done chan struct{}
}

// Initialize initializes the processor.
func (w *Processor[T]) Initialize() error {
	var err error
	w.buffer, err = fifo.New[T](w.BufferSize)
	if err != nil {
		return err
	}

	w.buffer.SetBlocking(false)
	w.buffer.OnDiscard = w.OnDiscard
	w.ctx, w.ctxCancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})
	return nil
}

// Close closes the processor.
// Items that were not processed are discarded.
func (w *Processor[T]) Close() {
	w.ctxCancel()
	w.buffer.Close()

	if w.running {
		<-w.done
	}
}

// Start starts the processor.
func (w *Processor[T]) Start() {
	w.running = true
	go w.run()
}

func (w *Processor[T]) run() {
	defer close(w.done)

	err := w.runInner()
	if err != nil {
		w.OnError(w.ctx, err)
	}
}

func (w *Processor[T]) runInner() error {
	for {
		item, err := w.buffer.PullWait()
		if err != nil {
			return nil
		}

		err = w.OnItem(item)
		if err != nil {
			return err
		}
	}
}

// Push pushes an item to the queue.
// It returns false when the queue is full or closed.
func (w *Processor[T]) Push(item T) bool {
	return w.buffer.Push(item) == nil
}
