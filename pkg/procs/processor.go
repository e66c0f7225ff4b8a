package procs

import (
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
)

// Processor is a processing unit hosted by a Graph.
type Processor interface {
	// Send passes a frame to the processor.
	// The caller keeps ownership of the frame.
	// It returns ErrTryAgain when the processor cannot accept it now.
	Send(f *frame.Frame) error

	// Output returns the queue where produced frames are pushed.
	// Processors that do not produce frames return nil.
	// Closing the processor closes its output.
	Output() *fifo.Queue[*frame.Frame]

	// Metadata returns processor metadata, encoded in JSON.
	Metadata() ([]byte, error)

	// Close closes the processor.
	Close()
}
