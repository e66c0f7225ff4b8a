// Package procs contains the processing graph, a registry of named processors
// exchanging frames.
package procs

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
)

var (
	// ErrTryAgain is returned when no frame is available yet,
	// or when a processor cannot accept a frame yet.
	ErrTryAgain = errors.New("try again")

	// ErrEndOfStream is returned when a processor stopped producing frames.
	ErrEndOfStream = errors.New("end of stream")
)

const (
	defaultPollPeriod = 10 * time.Millisecond
)

// IsTerminal returns whether an error returned by the graph means that
// the processor will never produce or accept frames again.
func IsTerminal(err error) bool {
	var notFound liberrors.ErrProcessorNotFound
	var closed liberrors.ErrGraphClosed
	return errors.As(err, &notFound) || errors.As(err, &closed) || errors.Is(err, ErrEndOfStream)
}

type processorLogger struct {
	parent logger.Writer
	prefix string
}

func (l *processorLogger) Log(level logger.Level, format string, args ...any) {
	l.parent.Log(level, l.prefix+format, args...)
}

type entry struct {
	id   int
	name string
	proc Processor
}

// Graph is a processing graph.
type Graph struct {
	// maximum time RecvFrame() waits for a frame before returning ErrTryAgain.
	// It defaults to 10ms.
	PollPeriod time.Duration

	// parent.
	Parent logger.Writer

	mutex      sync.Mutex
	nextID     int
	processors map[int]*entry
	closed     bool
}

// Open allocates a Graph.
func Open(parent logger.Writer) (*Graph, error) {
	g := &Graph{
		Parent: parent,
	}
	err := g.Initialize()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Initialize initializes a Graph.
func (g *Graph) Initialize() error {
	if g.PollPeriod == 0 {
		g.PollPeriod = defaultPollPeriod
	}
	if g.Parent == nil {
		g.Parent = logger.Discard
	}

	g.processors = make(map[int]*entry)

	g.Log(logger.Debug, "available processors: %s", strings.Join(Registered(), ", "))

	return nil
}

// Log implements logger.Writer.
func (g *Graph) Log(level logger.Level, format string, args ...any) {
	g.Parent.Log(level, "[procs] "+format, args...)
}

// Close deletes all processors and closes the graph.
func (g *Graph) Close() {
	g.mutex.Lock()
	if g.closed {
		g.mutex.Unlock()
		return
	}
	g.closed = true
	entries := g.processors
	g.processors = make(map[int]*entry)
	g.mutex.Unlock()

	g.Log(logger.Debug, "closing, %d processors left", len(entries))

	for _, e := range entries {
		e.proc.Close()
	}
}

// CreateProcessor creates a processor by name.
// Settings are encoded as a URL query, for instance "rtsp_url=rtsp%3A%2F%2Fhost%2Fpath".
// Returned ids are never reused.
func (g *Graph) CreateProcessor(name string, settings string) (int, error) {
	f, ok := lookup(name)
	if !ok {
		return -1, liberrors.ErrProcessorUnknown{Name: name}
	}

	s, err := parseSettings(settings)
	if err != nil {
		return -1, errors.Wrapf(err, "invalid settings for %s", name)
	}

	g.mutex.Lock()
	if g.closed {
		g.mutex.Unlock()
		return -1, liberrors.ErrGraphClosed{}
	}
	id := g.nextID
	g.nextID++
	g.mutex.Unlock()

	proc, err := f(Params{
		Settings: s,
		Log:      &processorLogger{parent: g, prefix: "[" + name + " " + strconv.Itoa(id) + "] "},
	})
	if err != nil {
		return -1, errors.Wrapf(err, "unable to create %s", name)
	}

	g.mutex.Lock()
	if g.closed {
		g.mutex.Unlock()
		proc.Close()
		return -1, liberrors.ErrGraphClosed{}
	}
	g.processors[id] = &entry{id: id, name: name, proc: proc}
	g.mutex.Unlock()

	g.Log(logger.Debug, "created %s with id %d", name, id)

	return id, nil
}

// DeleteProcessor deletes a processor.
// Routines blocked in RecvFrame() on the processor return ErrProcessorNotFound.
func (g *Graph) DeleteProcessor(id int) error {
	g.mutex.Lock()
	e, ok := g.processors[id]
	if ok {
		delete(g.processors, id)
	}
	g.mutex.Unlock()

	if !ok {
		return liberrors.ErrProcessorNotFound{ID: id}
	}

	e.proc.Close()

	g.Log(logger.Debug, "deleted %s with id %d", e.name, id)
	return nil
}

// SendFrame sends a frame to a processor.
// The caller keeps ownership of the frame.
func (g *Graph) SendFrame(id int, f *frame.Frame) error {
	e, err := g.get(id)
	if err != nil {
		return err
	}

	err = e.proc.Send(f)
	if err != nil {
		if errors.Is(err, ErrTryAgain) {
			return ErrTryAgain
		}
		return errors.Wrapf(err, "%s %d", e.name, id)
	}
	return nil
}

// RecvFrame receives a frame from a processor.
// It waits up to PollPeriod, then returns ErrTryAgain.
// Ownership of the returned frame passes to the caller.
func (g *Graph) RecvFrame(id int) (*frame.Frame, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}

	out := e.proc.Output()
	if out == nil {
		return nil, liberrors.ErrProcessorNoOutput{}
	}

	f, err := out.PullTimeout(g.PollPeriod)
	switch {
	case err == nil:
		return f, nil

	case errors.Is(err, fifo.ErrTimeout):
		return nil, ErrTryAgain

	default:
		if _, err2 := g.get(id); err2 != nil {
			return nil, err2
		}
		return nil, ErrEndOfStream
	}
}

// Metadata returns the metadata of a processor.
func (g *Graph) Metadata(id int) ([]byte, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}

	return e.proc.Metadata()
}

func (g *Graph) get(id int) (*entry, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil, liberrors.ErrGraphClosed{}
	}

	e, ok := g.processors[id]
	if !ok {
		return nil, liberrors.ErrProcessorNotFound{ID: id}
	}
	return e, nil
}
