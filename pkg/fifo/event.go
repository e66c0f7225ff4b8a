package fifo

// event is a broadcast notification that supports select.
// It must be accessed with the queue mutex held.
type event struct {
	ch chan struct{}
}

func newEvent() event {
	return event{ch: make(chan struct{})}
}

func (e *event) signal() {
	close(e.ch)
	e.ch = make(chan struct{})
}

func (e *event) wait() <-chan struct{} {
	return e.ch
}
