package gaclient

import (
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
	"github.com/bluenviron/gaclient/pkg/procs"
)

type fakeProcessor struct {
	id       int
	name     string
	settings url.Values
	out      chan *frame.Frame
	deleted  chan struct{}
	sent     []*frame.Frame
}

// fakeGraph is a processing graph whose demuxer is fed by the test.
type fakeGraph struct {
	// decoders forward a duplicate of every received frame to their output.
	echo bool

	// RecvFrame blocks until a frame arrives or the processor is deleted.
	blockRecv bool

	// names of processors whose creation fails.
	failCreate map[string]struct{}

	// names of processors that never accept frames.
	busy map[string]struct{}

	// demuxer metadata. If nil, metadata is not ready.
	metadata []byte

	mutex      sync.Mutex
	nextID     int
	processors map[int]*fakeProcessor
	created    []*fakeProcessor
	deletedIDs []int
}

func newFakeGraph(metadata []byte) *fakeGraph {
	return &fakeGraph{
		echo:       true,
		failCreate: make(map[string]struct{}),
		busy:       make(map[string]struct{}),
		metadata:   metadata,
		processors: make(map[int]*fakeProcessor),
	}
}

func (g *fakeGraph) CreateProcessor(name string, settings string) (int, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.failCreate[name]; ok {
		return 0, liberrors.ErrProcessorUnknown{Name: name}
	}

	v, err := url.ParseQuery(settings)
	if err != nil {
		return 0, err
	}

	p := &fakeProcessor{
		id:       g.nextID,
		name:     name,
		settings: v,
		out:      make(chan *frame.Frame, 1024),
		deleted:  make(chan struct{}),
	}
	g.nextID++
	g.processors[p.id] = p
	g.created = append(g.created, p)

	return p.id, nil
}

func (g *fakeGraph) SendFrame(id int, f *frame.Frame) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	p, ok := g.processors[id]
	if !ok {
		return liberrors.ErrProcessorNotFound{ID: id}
	}

	if _, ok := g.busy[p.name]; ok {
		return procs.ErrTryAgain
	}

	if !g.echo {
		return nil
	}

	dup := f.Duplicate()
	select {
	case p.out <- dup:
		p.sent = append(p.sent, dup)
		return nil
	default:
		dup.Release()
		return procs.ErrTryAgain
	}
}

func (g *fakeGraph) RecvFrame(id int) (*frame.Frame, error) {
	g.mutex.Lock()
	p, ok := g.processors[id]
	g.mutex.Unlock()

	if !ok {
		return nil, liberrors.ErrProcessorNotFound{ID: id}
	}

	var timeout <-chan time.Time
	if !g.blockRecv {
		timeout = time.After(5 * time.Millisecond)
	}

	select {
	case f := <-p.out:
		return f, nil

	case <-p.deleted:
		return nil, liberrors.ErrProcessorNotFound{ID: id}

	case <-timeout:
		return nil, procs.ErrTryAgain
	}
}

func (g *fakeGraph) Metadata(id int) ([]byte, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.processors[id]; !ok {
		return nil, liberrors.ErrProcessorNotFound{ID: id}
	}

	if g.metadata == nil {
		return nil, liberrors.ErrMetadataNotReady{}
	}
	return g.metadata, nil
}

func (g *fakeGraph) DeleteProcessor(id int) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	p, ok := g.processors[id]
	if !ok {
		return liberrors.ErrProcessorNotFound{ID: id}
	}

	delete(g.processors, id)
	g.deletedIDs = append(g.deletedIDs, id)
	close(p.deleted)

	for {
		select {
		case f := <-p.out:
			f.Release()
		default:
			return nil
		}
	}
}

func (g *fakeGraph) Close() {
	g.mutex.Lock()
	ids := make([]int, 0, len(g.processors))
	for id := range g.processors {
		ids = append(ids, id)
	}
	g.mutex.Unlock()

	for _, id := range ids {
		g.DeleteProcessor(id) //nolint:errcheck
	}
}

func (g *fakeGraph) demuxer() *fakeProcessor {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, p := range g.created {
		if p.name == demuxerName {
			return p
		}
	}
	return nil
}

func (g *fakeGraph) inject(f *frame.Frame) {
	g.demuxer().out <- f
}

func (g *fakeGraph) setMetadata(metadata []byte) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.metadata = metadata
}

func (g *fakeGraph) setBusy(name string, busy bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if busy {
		g.busy[name] = struct{}{}
	} else {
		delete(g.busy, name)
	}
}

func (g *fakeGraph) sentCount(name string) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n := 0
	for _, p := range g.created {
		if p.name == name {
			n += len(p.sent)
		}
	}
	return n
}

func (g *fakeGraph) names() []string {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	ret := make([]string, len(g.created))
	for i, p := range g.created {
		ret[i] = p.name
	}
	return ret
}

func (g *fakeGraph) isDeleted(id int) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	_, ok := g.processors[id]
	return !ok
}

type frameCounter struct {
	created atomic.Int64
	freed   atomic.Int64
}

func (fc *frameCounter) newFrame(esID int, pts time.Duration) *frame.Frame {
	fc.created.Inc()

	f := &frame.Frame{
		Planes: [][]byte{{0, 0, 0, 1, 0x65}},
		ESID:   esID,
		PTS:    pts,
		OnFree: func() {
			fc.freed.Inc()
		},
	}
	f.Initialize()
	return f
}

func (fc *frameCounter) requireBalanced(t *testing.T) {
	require.Equal(t, fc.created.Load(), fc.freed.Load())
}

func testMetadata(streams ...demuxerStream) []byte {
	byts, err := json.Marshal(demuxerMetadata{Streams: streams})
	if err != nil {
		panic(err)
	}
	return byts
}

func pullFrame(t *testing.T, c *Client, channel int) *frame.Frame {
	f, err := c.VideoQueue(channel).PullTimeout(2 * time.Second)
	require.NoError(t, err)
	return f
}

type fakeSink struct {
	mutex  sync.Mutex
	opens  [][2]int
	queued int
	closed int
}

func (s *fakeSink) Open(sampleRate int, channelCount int, _ SampleFormat) (AudioDevice, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.opens = append(s.opens, [2]int{sampleRate, channelCount})
	return &fakeDevice{s: s}, nil
}

func (s *fakeSink) stats() ([][2]int, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([][2]int(nil), s.opens...), s.queued
}

type fakeDevice struct {
	s *fakeSink
}

func (d *fakeDevice) QueueSamples(buf []byte) error {
	d.s.mutex.Lock()
	defer d.s.mutex.Unlock()
	d.s.queued += len(buf)
	return nil
}

func (d *fakeDevice) Close() error {
	d.s.mutex.Lock()
	defer d.s.mutex.Unlock()
	d.s.closed++
	return nil
}

func TestClientStartErrors(t *testing.T) {
	t.Run("url missing", func(t *testing.T) {
		c := &Client{}
		err := c.Start()
		require.Equal(t, liberrors.ErrClientURLMissing{}, err)
	})

	t.Run("invalid channel count", func(t *testing.T) {
		c := &Client{
			URL:              "rtsp://localhost/stream",
			Graph:            newFakeGraph(nil),
			MaxVideoChannels: 17,
		}
		err := c.Start()
		require.EqualError(t, err, "invalid video channel count: 17")
	})

	t.Run("graph", func(t *testing.T) {
		c := &Client{
			URL: "rtsp://localhost/stream",
			OpenGraph: func(logger.Writer) (Graph, error) {
				return nil, errors.New("out of memory")
			},
		}
		err := c.Start()
		require.EqualError(t, err, "unable to open processing graph: out of memory")
	})

	t.Run("demuxer", func(t *testing.T) {
		g := newFakeGraph(nil)
		g.failCreate[demuxerName] = struct{}{}

		c := &Client{
			URL:   "rtsp://localhost/stream",
			Graph: g,
		}
		err := c.Start()
		require.EqualError(t, err, "unable to register demuxer: unknown processor 'rtsp_dmux'")
	})

	t.Run("not started", func(t *testing.T) {
		c := &Client{}
		require.Equal(t, liberrors.ErrClientNotStarted{}, c.Wait())
		c.Close()
	})

	t.Run("already started", func(t *testing.T) {
		c := &Client{
			URL:   "rtsp://localhost/stream",
			Graph: newFakeGraph(nil),
		}
		err := c.Start()
		require.NoError(t, err)
		defer c.Close()

		err = c.Start()
		require.Equal(t, liberrors.ErrClientAlreadyStarted{}, err)
	})
}

func TestClientDemuxerSettings(t *testing.T) {
	g := newFakeGraph(nil)

	c := &Client{
		URL:   "rtsp://localhost:8554/stream",
		Graph: g,
		DemuxerSettings: url.Values{
			"protocol": []string{"tcp"},
		},
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	d := g.demuxer()
	require.Equal(t, "rtsp://localhost:8554/stream", d.settings.Get("rtsp_url"))
	require.Equal(t, "tcp", d.settings.Get("protocol"))
	require.NotEmpty(t, c.SessionID())
	require.True(t, c.Running())
	require.Equal(t, 8, c.VideoChannels())
	require.Equal(t, 60, c.VideoQueue(0).Cap())
	require.Nil(t, c.VideoQueue(8))
}

func TestClientRouting(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 5, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 6, MIMEType: "audio/MP3", ClockRate: 90000},
	))

	ready := atomic.NewInt64(0)
	activity := atomic.NewInt64(0)

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
		OnFrameReady: func(channel int) {
			if channel == 0 {
				ready.Inc()
			}
		},
		OnActivity: func() {
			activity.Inc()
		},
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(5, 0))
	g.inject(fc.newFrame(6, 0))
	g.inject(fc.newFrame(5, time.Second))

	f := pullFrame(t, c, 0)
	require.Equal(t, 5, f.ESID)
	require.Equal(t, time.Duration(0), f.PTS)
	f.Release()

	f = pullFrame(t, c, 0)
	require.Equal(t, 5, f.ESID)
	require.Equal(t, time.Second, f.PTS)
	f.Release()

	require.Equal(t, []string{"rtsp_dmux", "h264_dec", "mp3_dec"}, g.names())

	streams := c.Streams()
	require.Equal(t, []StreamInfo{
		{ID: 5, MIMEType: "video/H264", Kind: CodecKindH264, Channel: 0, ProcessorID: 1},
		{ID: 6, MIMEType: "audio/MP3", Kind: CodecKindMP3, Channel: -1, ProcessorID: 2},
	}, streams)

	require.Eventually(t, func() bool {
		return ready.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NotZero(t, activity.Load())

	c.Close()

	require.Equal(t, liberrors.ErrClientTerminated{}, c.Wait())
	require.False(t, c.Running())
	require.True(t, g.isDeleted(0))
	require.True(t, g.isDeleted(1))
	require.True(t, g.isDeleted(2))
	fc.requireBalanced(t)
}

func TestClientUnsupportedStream(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 5, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 7, MIMEType: "video/UNKNOWN", ClockRate: 90000},
	))

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(7, 0))
	g.inject(fc.newFrame(7, time.Millisecond))
	g.inject(fc.newFrame(5, 2*time.Millisecond))

	f := pullFrame(t, c, 0)
	require.Equal(t, 5, f.ESID)
	f.Release()

	require.Equal(t, []string{"rtsp_dmux", "h264_dec"}, g.names())
	require.Len(t, c.Streams(), 1)
	require.Equal(t, 0, c.VideoQueue(1).Len())
	require.True(t, c.Running())

	c.Close()
	fc.requireBalanced(t)
}

func TestClientNoCrossTalk(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 1, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 2, MIMEType: "video/H265", ClockRate: 90000},
	))

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	for i := range 20 {
		g.inject(fc.newFrame(1, time.Duration(i)))
		g.inject(fc.newFrame(2, time.Duration(i)))
	}

	for ch, esID := range []int{1, 2} {
		for i := range 20 {
			f := pullFrame(t, c, ch)
			require.Equal(t, esID, f.ESID)
			require.Equal(t, time.Duration(i), f.PTS)
			f.Release()
		}
	}

	c.Close()
	fc.requireBalanced(t)
}

func TestClientShutdownUnblocksReceive(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 0, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 1, MIMEType: "audio/PCMU", ClockRate: 8000, Channels: 1},
	))
	g.echo = false
	g.blockRecv = true

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(0, 0))

	require.Eventually(t, func() bool {
		return len(c.Streams()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}

	fc.requireBalanced(t)
}

func TestClientFullQueueUnblockedByClose(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 3, MIMEType: "video/H264", ClockRate: 90000},
	))

	c := &Client{
		URL:                "rtsp://localhost/stream",
		Graph:              g,
		RendererBufferSize: 2,
	}
	err := c.Start()
	require.NoError(t, err)

	for i := range 5 {
		g.inject(fc.newFrame(3, time.Duration(i)))
	}

	require.Eventually(t, func() bool {
		return c.VideoQueue(0).Len() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// the queue never overwrites: the oldest frames are still there.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, c.VideoQueue(0).Len())

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}

	fc.requireBalanced(t)
}

func TestClientDiscoveryOrder(t *testing.T) {
	metadata := testMetadata(
		demuxerStream{ID: 0, MIMEType: "audio/PCMU", ClockRate: 8000, Channels: 1},
		demuxerStream{ID: 3, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 1, MIMEType: "video/H265", ClockRate: 90000},
		demuxerStream{ID: 9, MIMEType: "application/octet-stream", ClockRate: 90000},
		demuxerStream{ID: 2, MIMEType: "video/H264", ClockRate: 90000},
	)

	run := func() []StreamInfo {
		var fc frameCounter
		g := newFakeGraph(metadata)

		c := &Client{
			URL:   "rtsp://localhost/stream",
			Graph: g,
		}
		err := c.Start()
		require.NoError(t, err)
		defer c.Close()

		g.inject(fc.newFrame(3, 0))
		pullFrame(t, c, 0).Release()

		return c.Streams()
	}

	first := run()
	second := run()
	require.Equal(t, first, second)

	channels := make(map[int]int)
	for _, s := range first {
		channels[s.ID] = s.Channel
	}
	require.Equal(t, map[int]int{0: -1, 3: 0, 1: 1, 2: 2}, channels)
}

func TestClientStopDuringRetry(t *testing.T) {
	g := newFakeGraph(nil)

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	// let the dispatch loop spin on ErrTryAgain.
	time.Sleep(20 * time.Millisecond)

	c.running.Store(false)

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not exit")
	}

	require.Equal(t, liberrors.ErrClientTerminated{}, c.Wait())
}

func TestClientDecoderCreateFailure(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 0, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 1, MIMEType: "video/H265", ClockRate: 90000},
	))
	g.failCreate["h264_dec"] = struct{}{}

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(0, 0))
	g.inject(fc.newFrame(1, 0))

	f := pullFrame(t, c, 0)
	require.Equal(t, 1, f.ESID)
	f.Release()

	c.Close()
	fc.requireBalanced(t)
}

func TestClientChannelsExhausted(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 0, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 1, MIMEType: "video/H264", ClockRate: 90000},
	))

	c := &Client{
		URL:              "rtsp://localhost/stream",
		Graph:            g,
		MaxVideoChannels: 1,
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(1, 0))
	g.inject(fc.newFrame(0, 0))

	f := pullFrame(t, c, 0)
	require.Equal(t, 0, f.ESID)
	f.Release()

	require.Equal(t, []string{"rtsp_dmux", "h264_dec"}, g.names())

	c.Close()
	fc.requireBalanced(t)
}

func TestClientLastAudioWins(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 4, MIMEType: "audio/PCMU", ClockRate: 8000, Channels: 1},
		demuxerStream{ID: 5, MIMEType: "audio/PCMA", ClockRate: 8000, Channels: 1},
		demuxerStream{ID: 6, MIMEType: "video/H264", ClockRate: 90000},
	))

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	g.inject(fc.newFrame(6, 0))
	pullFrame(t, c, 0).Release()

	require.Equal(t, []string{"rtsp_dmux", "g711u_dec", "g711a_dec", "h264_dec"}, g.names())
	require.True(t, g.isDeleted(1))

	streams := c.Streams()
	require.Len(t, streams, 2)
	require.Equal(t, 5, streams[1].ID)
	require.Equal(t, "8000", g.created[2].settings.Get("sample_rate"))
	require.Equal(t, "1", g.created[2].settings.Get("channels"))

	c.Close()
	fc.requireBalanced(t)
}

func TestClientAudioSink(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 0, MIMEType: "audio/L16", ClockRate: 48000, Channels: 2},
	))

	sink := &fakeSink{}

	c := &Client{
		URL:       "rtsp://localhost/stream",
		Graph:     g,
		AudioSink: sink,
	}
	err := c.Start()
	require.NoError(t, err)

	for i := range 3 {
		f := fc.newFrame(0, time.Duration(i))
		f.SampleRate = 48000
		f.ChannelCount = 2
		g.inject(f)
	}

	require.Eventually(t, func() bool {
		_, queued := sink.stats()
		return queued == 15
	}, 2*time.Second, 5*time.Millisecond)

	opens, _ := sink.stats()
	require.Equal(t, [][2]int{{44100, 2}, {48000, 2}}, opens)

	c.Close()

	require.Equal(t, 2, sink.closed)
	fc.requireBalanced(t)
}

func TestClientInvalidMetadata(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph([]byte("{not json"))

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	g.inject(fc.newFrame(0, 0))

	err = c.Wait()
	require.ErrorContains(t, err, "stream discovery failed: invalid demuxer metadata")
	require.False(t, c.Running())
	fc.requireBalanced(t)
}

func TestClientDemuxerStopped(t *testing.T) {
	g := newFakeGraph(nil)

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	err = g.DeleteProcessor(g.demuxer().id)
	require.NoError(t, err)

	err = c.Wait()
	require.EqualError(t, err, "demuxer stopped: processor 0 not found")
}

func TestClientStalledDecoder(t *testing.T) {
	var fc frameCounter

	g := newFakeGraph(testMetadata(
		demuxerStream{ID: 0, MIMEType: "video/H264", ClockRate: 90000},
		demuxerStream{ID: 1, MIMEType: "audio/PCMU", ClockRate: 8000, Channels: 1},
	))
	g.setBusy("g711u_dec", true)

	c := &Client{
		URL:   "rtsp://localhost/stream",
		Graph: g,
	}
	err := c.Start()
	require.NoError(t, err)

	for i := range 20 {
		g.inject(fc.newFrame(1, time.Duration(i)))
	}
	for i := range 3 {
		g.inject(fc.newFrame(0, time.Duration(i)))
	}

	// video keeps flowing while audio is stuck.
	for i := range 3 {
		f := pullFrame(t, c, 0)
		require.Equal(t, time.Duration(i), f.PTS)
		f.Release()
	}

	streams := c.Streams()
	require.Equal(t, uint64(0), streams[0].FramesDropped)
	require.Equal(t, uint64(20), streams[1].FramesDropped)

	// the decoder accepts frames again.
	g.setBusy("g711u_dec", false)
	g.inject(fc.newFrame(1, 20))

	require.Eventually(t, func() bool {
		return g.sentCount("g711u_dec") == 1
	}, 2*time.Second, 5*time.Millisecond)

	c.Close()
	fc.requireBalanced(t)
}

func TestClientMetadataLate(t *testing.T) {
	t.Run("routed after discovery", func(t *testing.T) {
		var fc frameCounter

		g := newFakeGraph(nil)

		c := &Client{
			URL:   "rtsp://localhost/stream",
			Graph: g,
		}
		err := c.Start()
		require.NoError(t, err)

		g.inject(fc.newFrame(3, 0))
		g.inject(fc.newFrame(3, 1))

		require.Eventually(t, func() bool {
			return len(g.demuxer().out) == 0
		}, 2*time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		require.Empty(t, c.Streams())

		g.setMetadata(testMetadata(
			demuxerStream{ID: 3, MIMEType: "video/H264", ClockRate: 90000},
		))
		g.inject(fc.newFrame(3, 2))

		for i := range 3 {
			f := pullFrame(t, c, 0)
			require.Equal(t, time.Duration(i), f.PTS)
			f.Release()
		}

		c.Close()
		fc.requireBalanced(t)
	})

	t.Run("released on close", func(t *testing.T) {
		var fc frameCounter

		g := newFakeGraph(nil)

		c := &Client{
			URL:   "rtsp://localhost/stream",
			Graph: g,
		}
		err := c.Start()
		require.NoError(t, err)

		g.inject(fc.newFrame(3, 0))
		g.inject(fc.newFrame(3, 1))

		require.Eventually(t, func() bool {
			return len(g.demuxer().out) == 0
		}, 2*time.Second, 5*time.Millisecond)

		c.Close()
		fc.requireBalanced(t)
	})
}
