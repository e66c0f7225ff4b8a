/*
Package gaclient is the client side of a remote game streaming system.

It reads a RTSP stream made of one or more video elementary streams and one audio
elementary stream, launches a decoder for each of them and hands decoded frames to
the presentation layer.
*/
package gaclient

import (
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
	"github.com/bluenviron/gaclient/pkg/procs"
)

const (
	demuxerName             = "rtsp_dmux"
	maxVideoChannelsLimit   = 16
	defaultMaxVideoChannels = 8
)

// Client is a game streaming client.
type Client struct {
	//
	// parameters
	//
	// source URL.
	URL string
	// processing graph.
	// If nil, a graph is opened with OpenGraph and closed with the client.
	// It defaults to nil.
	Graph Graph
	// function used to open the processing graph.
	// It defaults to procs.Open.
	OpenGraph func(parent logger.Writer) (Graph, error)
	// maximum number of video channels.
	// It defaults to 8.
	MaxVideoChannels int
	// size of the queue between a video decoder and the presentation layer.
	// It defaults to 60.
	RendererBufferSize int
	// additional settings of the demuxer, for instance "protocol".
	DemuxerSettings url.Values
	// size of decoder queues.
	// It defaults to 64.
	DecoderBufferSize int

	//
	// audio (all optional)
	//
	// audio output.
	// If nil, audio frames are decoded and dropped.
	AudioSink AudioSink
	// sample rate used to open the audio output.
	// It defaults to 44100.
	AudioSampleRate int
	// channel count used to open the audio output.
	// It defaults to 2.
	AudioChannels int
	// sample format used to open the audio output.
	// It defaults to SampleFormatS16.
	AudioFormat SampleFormat

	//
	// callbacks (all optional)
	//
	// called when a video frame has been queued into a channel queue.
	// It must not block.
	OnFrameReady func(channel int)
	// called when a frame is received from the demuxer or from a decoder.
	OnActivity func()

	// parent.
	Parent logger.Writer

	//
	// private
	//

	sessionID string
	running   *atomic.Bool
	graph     Graph
	ownsGraph bool
	queues    []*fifo.Queue[*frame.Frame]
	demuxerID *atomic.Int64
	closeOnce sync.Once

	// discovery
	mutex    sync.Mutex
	registry *streamRegistry
	closing  bool

	closeError error

	// out
	done chan struct{}
}

// Start opens the processing graph, registers the demuxer and starts reading.
func (c *Client) Start() error {
	if c.done != nil {
		return liberrors.ErrClientAlreadyStarted{}
	}

	if c.URL == "" {
		return liberrors.ErrClientURLMissing{}
	}

	if c.OpenGraph == nil {
		c.OpenGraph = openDefaultGraph
	}
	if c.MaxVideoChannels == 0 {
		c.MaxVideoChannels = defaultMaxVideoChannels
	}
	if c.RendererBufferSize == 0 {
		c.RendererBufferSize = 60
	}
	if c.DecoderBufferSize == 0 {
		c.DecoderBufferSize = 64
	}
	if c.AudioSampleRate == 0 {
		c.AudioSampleRate = 44100
	}
	if c.AudioChannels == 0 {
		c.AudioChannels = 2
	}
	if c.Parent == nil {
		c.Parent = logger.Discard
	}

	if c.MaxVideoChannels < 0 || c.MaxVideoChannels > maxVideoChannelsLimit {
		return liberrors.ErrClientInvalidChannelCount{Count: c.MaxVideoChannels}
	}

	c.sessionID = uuid.New().String()
	c.running = atomic.NewBool(true)
	c.demuxerID = atomic.NewInt64(-1)
	c.registry = newStreamRegistry()

	if c.Graph != nil {
		c.graph = c.Graph
	} else {
		g, err := c.OpenGraph(c.Parent)
		if err != nil {
			return errors.Wrap(err, "unable to open processing graph")
		}
		c.graph = g
		c.ownsGraph = true
	}

	c.queues = make([]*fifo.Queue[*frame.Frame], c.MaxVideoChannels)
	for i := range c.queues {
		q, err := fifo.New[*frame.Frame](c.RendererBufferSize)
		if err != nil {
			c.releaseResources()
			return err
		}
		q.OnDiscard = func(f *frame.Frame) {
			f.Release()
		}
		c.queues[i] = q
	}

	settings := url.Values{}
	for k, v := range c.DemuxerSettings {
		settings[k] = v
	}
	settings.Set("rtsp_url", c.URL)

	id, err := c.graph.CreateProcessor(demuxerName, settings.Encode())
	if err != nil {
		c.releaseResources()
		return errors.Wrap(err, "unable to register demuxer")
	}
	c.demuxerID.Store(int64(id))

	c.Log(logger.Info, "reading from %s", c.URL)

	c.done = make(chan struct{})
	go c.run()

	return nil
}

// Close stops the session and releases all resources.
// It waits for every routine of the session to exit.
func (c *Client) Close() {
	if c.done == nil {
		return
	}

	c.closeOnce.Do(func() {
		c.stop()
		<-c.done
		c.releaseResources()
	})
}

// Wait waits until the session stops.
// This can happen when a fatal error occurs or when Close() is called.
func (c *Client) Wait() error {
	if c.done == nil {
		return liberrors.ErrClientNotStarted{}
	}

	<-c.done
	return c.closeError
}

// Log implements logger.Writer.
func (c *Client) Log(level logger.Level, format string, args ...any) {
	c.Parent.Log(level, "[client "+c.sessionID+"] "+format, args...)
}

// SessionID returns the session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Running returns whether the session is running.
func (c *Client) Running() bool {
	return c.running != nil && c.running.Load()
}

// VideoChannels returns the number of video channels.
func (c *Client) VideoChannels() int {
	return len(c.queues)
}

// VideoQueue returns the queue of a video channel.
// Frames pulled from the queue must be released by the caller.
func (c *Client) VideoQueue(channel int) *fifo.Queue[*frame.Frame] {
	if channel < 0 || channel >= len(c.queues) {
		return nil
	}
	return c.queues[channel]
}

// Streams returns the elementary streams that have a decoder.
func (c *Client) Streams() []StreamInfo {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.registry == nil {
		return nil
	}
	return c.registry.infos()
}

func (c *Client) run() {
	defer close(c.done)

	err := c.runDemuxer()

	c.stop()
	c.joinDecoders()

	if err != nil {
		c.Log(logger.Error, "%v", err)
		c.closeError = err
	} else {
		c.closeError = liberrors.ErrClientTerminated{}
	}
}

// stop switches off the running flag, unblocks producers and deletes every processor,
// making blocked receives return.
func (c *Client) stop() {
	c.running.Store(false)

	for _, q := range c.queues {
		q.SetBlocking(false)
	}

	c.mutex.Lock()
	c.closing = true
	slots := c.registry.all()
	c.mutex.Unlock()

	if id := int(c.demuxerID.Swap(-1)); id >= 0 {
		c.deleteProcessor(id)
	}

	for _, s := range slots {
		if id := s.release(); id >= 0 {
			c.deleteProcessor(id)
		}
	}
}

func (c *Client) deleteProcessor(id int) {
	err := c.graph.DeleteProcessor(id)
	if err != nil && !procs.IsTerminal(err) {
		c.Log(logger.Warn, "unable to delete processor %d: %v", id, err)
	}
}

func (c *Client) releaseResources() {
	for _, q := range c.queues {
		if q != nil {
			q.Close()
		}
	}

	if c.ownsGraph {
		c.graph.Close()
	}
}

func (c *Client) activity() {
	if c.OnActivity != nil {
		c.OnActivity()
	}
}
