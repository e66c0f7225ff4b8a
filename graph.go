package gaclient

import (
	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/procs"

	// processors used by the client.
	_ "github.com/bluenviron/gaclient/pkg/processors/audiodec"
	_ "github.com/bluenviron/gaclient/pkg/processors/rtspdmux"
	_ "github.com/bluenviron/gaclient/pkg/processors/videodec"
)

// Graph is a processing graph.
//
// RecvFrame and SendFrame return procs.ErrTryAgain when the operation must be retried.
// DeleteProcessor must unblock routines that are blocked inside RecvFrame on the same id,
// making them return an error.
type Graph interface {
	CreateProcessor(name string, settings string) (int, error)
	SendFrame(id int, f *frame.Frame) error
	RecvFrame(id int) (*frame.Frame, error)
	Metadata(id int) ([]byte, error)
	DeleteProcessor(id int) error
	Close()
}

func openDefaultGraph(parent logger.Writer) (Graph, error) {
	return procs.Open(parent)
}
