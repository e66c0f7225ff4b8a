// Package rtspdmux contains the rtsp_dmux processor, that reads a RTSP stream
// and splits it into frames tagged with their elementary stream id.
package rtspdmux

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v5"
	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"github.com/bluenviron/gortsplib/v5/pkg/description"
	"github.com/bluenviron/gortsplib/v5/pkg/format"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
	"github.com/bluenviron/gaclient/pkg/procs"
)

// Name is the processor name.
const Name = "rtsp_dmux"

func init() {
	procs.MustRegister(Name, newFromParams)
}

// ParseProtocol parses a transport protocol.
// "automatic" and "" return nil, that lets the client pick UDP first, then TCP.
func ParseProtocol(s string) (*gortsplib.Protocol, error) {
	var p gortsplib.Protocol

	switch strings.ToLower(s) {
	case "", "automatic":
		return nil, nil

	case "udp":
		p = gortsplib.ProtocolUDP

	case "multicast":
		p = gortsplib.ProtocolUDPMulticast

	case "tcp":
		p = gortsplib.ProtocolTCP

	default:
		return nil, liberrors.ErrProcessorSettingInvalid{Key: "protocol", Value: s}
	}

	return &p, nil
}

func newFromParams(p procs.Params) (procs.Processor, error) {
	rawURL, err := p.Settings.Required("rtsp_url")
	if err != nil {
		return nil, err
	}

	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, liberrors.ErrProcessorSettingInvalid{Key: "rtsp_url", Value: rawURL}
	}

	protocol, err := ParseProtocol(p.Settings.Get("protocol"))
	if err != nil {
		return nil, err
	}

	readTimeout, err := p.Settings.Duration("read_timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := p.Settings.Duration("write_timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}

	bufferSize, err := p.Settings.Int("buffer_size", 1024)
	if err != nil {
		return nil, err
	}

	d := &Demuxer{
		URL:          u,
		Protocol:     protocol,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		BufferSize:   bufferSize,
		Parent:       p.Log,
	}
	err = d.Initialize()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// StreamInfo describes an elementary stream.
type StreamInfo struct {
	ID        int    `json:"elementary_stream_id"`
	MIMEType  string `json:"sdp_mimetype"`
	ClockRate int    `json:"clock_rate"`
	Channels  int    `json:"channels"`
}

// Metadata is the metadata of the demuxer.
type Metadata struct {
	Streams            []StreamInfo `json:"elementary_streams"`
	RTPPacketsReceived uint64       `json:"rtp_packets_received"`
	RTPPacketsLost     uint64       `json:"rtp_packets_lost"`
	RTCPSenderReports  uint64       `json:"rtcp_sender_reports"`
	FramesDropped      uint64       `json:"frames_dropped"`
}

// Demuxer is the rtsp_dmux processor.
type Demuxer struct {
	// source URL.
	URL *base.URL

	// transport protocol.
	// It defaults to nil (automatic).
	Protocol *gortsplib.Protocol

	// timeout of read operations.
	// It defaults to 10 seconds.
	ReadTimeout time.Duration

	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration

	// size of the output queue.
	// It defaults to 1024.
	BufferSize int

	// parent.
	Parent logger.Writer

	ctx       context.Context
	ctxCancel func()
	out       *fifo.Queue[*frame.Frame]

	mutex   sync.RWMutex
	streams []*stream
	byMedia map[*description.Media]*stream

	rtpPacketsReceived *atomic.Uint64
	rtpPacketsLost     *atomic.Uint64
	rtcpSenderReports  *atomic.Uint64
	framesDropped      *atomic.Uint64

	done chan struct{}
}

// Initialize initializes the Demuxer and starts reading in the background.
func (d *Demuxer) Initialize() error {
	if d.ReadTimeout == 0 {
		d.ReadTimeout = 10 * time.Second
	}
	if d.WriteTimeout == 0 {
		d.WriteTimeout = 10 * time.Second
	}
	if d.BufferSize == 0 {
		d.BufferSize = 1024
	}
	if d.Parent == nil {
		d.Parent = logger.Discard
	}

	var err error
	d.out, err = fifo.New[*frame.Frame](d.BufferSize)
	if err != nil {
		return err
	}
	d.out.SetBlocking(false)
	d.out.OnDiscard = func(f *frame.Frame) {
		f.Release()
	}

	d.ctx, d.ctxCancel = context.WithCancel(context.Background())
	d.rtpPacketsReceived = atomic.NewUint64(0)
	d.rtpPacketsLost = atomic.NewUint64(0)
	d.rtcpSenderReports = atomic.NewUint64(0)
	d.framesDropped = atomic.NewUint64(0)
	d.done = make(chan struct{})

	go d.run()

	return nil
}

// Log implements logger.Writer.
func (d *Demuxer) Log(level logger.Level, format string, args ...any) {
	d.Parent.Log(level, format, args...)
}

// Close implements procs.Processor.
func (d *Demuxer) Close() {
	d.ctxCancel()
	<-d.done
	d.out.Close()
}

// Send implements procs.Processor.
func (d *Demuxer) Send(*frame.Frame) error {
	return liberrors.ErrProcessorNoInput{}
}

// Output implements procs.Processor.
func (d *Demuxer) Output() *fifo.Queue[*frame.Frame] {
	return d.out
}

// Metadata implements procs.Processor.
func (d *Demuxer) Metadata() ([]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.streams == nil {
		return nil, liberrors.ErrMetadataNotReady{}
	}

	m := Metadata{
		Streams:            make([]StreamInfo, len(d.streams)),
		RTPPacketsReceived: d.rtpPacketsReceived.Load(),
		RTPPacketsLost:     d.rtpPacketsLost.Load(),
		RTCPSenderReports:  d.rtcpSenderReports.Load(),
		FramesDropped:      d.framesDropped.Load(),
	}

	for i, s := range d.streams {
		m.Streams[i] = StreamInfo{
			ID:        s.id,
			MIMEType:  s.mimeType,
			ClockRate: s.clockRate,
			Channels:  s.channels,
		}
	}

	return json.Marshal(m)
}

func (d *Demuxer) run() {
	defer close(d.done)

	err := d.runInner()

	// receivers observe the end of the stream.
	d.out.Close()

	if d.ctx.Err() == nil {
		d.Log(logger.Error, "%v", err)
	}
}

func (d *Demuxer) runInner() error {
	c := &gortsplib.Client{
		Scheme:       d.URL.Scheme,
		Host:         d.URL.Host,
		Protocol:     d.Protocol,
		ReadTimeout:  d.ReadTimeout,
		WriteTimeout: d.WriteTimeout,
	}

	err := c.Start()
	if err != nil {
		return err
	}

	clientErr := make(chan error, 1)
	go func() {
		clientErr <- d.runClient(c)
	}()

	select {
	case err = <-clientErr:
		c.Close()
		return err

	case <-d.ctx.Done():
		c.Close()
		<-clientErr
		return liberrors.ErrClientTerminated{}
	}
}

func (d *Demuxer) runClient(c *gortsplib.Client) error {
	desc, _, err := c.Describe(d.URL)
	if err != nil {
		return err
	}

	err = d.setStreams(desc)
	if err != nil {
		return err
	}

	err = c.SetupAll(desc.BaseURL, desc.Medias)
	if err != nil {
		return err
	}

	c.OnPacketRTPAny(d.onPacketRTP)
	c.OnPacketRTCPAny(d.onPacketRTCP)

	_, err = c.Play(nil)
	if err != nil {
		return err
	}

	d.Log(logger.Info, "reading %d elementary streams", len(desc.Medias))

	return c.Wait()
}

func (d *Demuxer) setStreams(desc *description.Session) error {
	if len(desc.Medias) == 0 {
		return errors.New("no medias announced")
	}

	streams := make([]*stream, len(desc.Medias))
	byMedia := make(map[*description.Media]*stream, len(desc.Medias))

	for i, medi := range desc.Medias {
		s, err := newStream(i, medi)
		if err != nil {
			return err
		}

		d.Log(logger.Debug, "elementary stream %d: %s", s.id, s.mimeType)

		streams[i] = s
		byMedia[medi] = s
	}

	d.mutex.Lock()
	d.streams = streams
	d.byMedia = byMedia
	d.mutex.Unlock()

	return nil
}

func (d *Demuxer) onPacketRTP(medi *description.Media, forma format.Format, pkt *rtp.Packet) {
	d.rtpPacketsReceived.Inc()

	d.mutex.RLock()
	s, ok := d.byMedia[medi]
	d.mutex.RUnlock()

	if !ok || s.forma != forma {
		return
	}

	if lost := s.sequence.process(pkt.SequenceNumber); lost != 0 {
		d.rtpPacketsLost.Add(lost)
		d.Log(logger.Warn, "elementary stream %d: %d RTP packets lost", s.id, lost)
	}

	aus, err := s.depack(pkt)
	if err != nil {
		if !errors.Is(err, errSkip) {
			d.Log(logger.Warn, "elementary stream %d: %v", s.id, err)
		}
		return
	}

	pts := timestampToDuration(s.unwrapper.unwrap(pkt.Timestamp), s.clockRate)

	for _, au := range aus {
		f := &frame.Frame{
			Planes:       [][]byte{au},
			PTS:          pts,
			ESID:         s.id,
			SampleRate:   s.sampleRate,
			ChannelCount: s.channels,
		}
		f.Initialize()

		err = d.out.Push(f)
		if err != nil {
			f.Release()

			if d.framesDropped.Inc() == 1 {
				d.Log(logger.Warn, "output queue is full, dropping frames")
			}
		}
	}
}

func (d *Demuxer) onPacketRTCP(_ *description.Media, pkt rtcp.Packet) {
	if _, ok := pkt.(*rtcp.SenderReport); ok {
		d.rtcpSenderReports.Inc()
	}
}
