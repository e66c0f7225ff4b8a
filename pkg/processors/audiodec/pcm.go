package audiodec

import (
	"context"
	"encoding/json"

	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/asyncprocessor"
	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/procs"
)

// Metadata is the metadata of an audio decoder.
type Metadata struct {
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FramesDecoded uint64 `json:"frames_decoded"`
	FramesDropped uint64 `json:"frames_dropped"`
}

func releaseFrame(f *frame.Frame) {
	f.Release()
}

func newPCMFromParams(p procs.Params, decode func([]byte) ([]byte, error), defRate int, defChannels int) (procs.Processor, error) {
	sampleRate, err := p.Settings.Int("sample_rate", defRate)
	if err != nil {
		return nil, err
	}

	channels, err := p.Settings.Int("channels", defChannels)
	if err != nil {
		return nil, err
	}

	bufferSize, err := p.Settings.Int("buffer_size", 64)
	if err != nil {
		return nil, err
	}

	d := &PCMDecoder{
		Decode:       decode,
		SampleRate:   sampleRate,
		ChannelCount: channels,
		BufferSize:   bufferSize,
		Parent:       p.Log,
	}
	err = d.Initialize()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// PCMDecoder is a decoder of sample-based audio codecs.
type PCMDecoder struct {
	// converts a payload into S16LE samples.
	Decode func([]byte) ([]byte, error)

	// sample rate used when frames do not carry one.
	SampleRate int

	// channel count used when frames do not carry one.
	ChannelCount int

	// size of the input and output queues.
	// It defaults to 64.
	BufferSize int

	// parent.
	Parent logger.Writer

	async *asyncprocessor.Processor[*frame.Frame]
	out   *fifo.Queue[*frame.Frame]

	lastRate      *atomic.Int64
	framesDecoded *atomic.Uint64
	framesDropped *atomic.Uint64
}

// Initialize initializes the PCMDecoder.
func (d *PCMDecoder) Initialize() error {
	if d.BufferSize == 0 {
		d.BufferSize = 64
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
	d.out.OnDiscard = releaseFrame

	d.lastRate = atomic.NewInt64(int64(d.SampleRate))
	d.framesDecoded = atomic.NewUint64(0)
	d.framesDropped = atomic.NewUint64(0)

	d.async = &asyncprocessor.Processor[*frame.Frame]{
		BufferSize: d.BufferSize,
		OnItem:     d.decode,
		OnDiscard:  releaseFrame,
		OnError: func(_ context.Context, err error) {
			d.Parent.Log(logger.Error, "%v", err)
		},
	}
	err = d.async.Initialize()
	if err != nil {
		return err
	}

	d.async.Start()

	return nil
}

// Close implements procs.Processor.
func (d *PCMDecoder) Close() {
	d.async.Close()
	d.out.Close()
}

// Send implements procs.Processor.
func (d *PCMDecoder) Send(f *frame.Frame) error {
	dup := f.Duplicate()
	if !d.async.Push(dup) {
		dup.Release()
		return procs.ErrTryAgain
	}
	return nil
}

// Output implements procs.Processor.
func (d *PCMDecoder) Output() *fifo.Queue[*frame.Frame] {
	return d.out
}

// Metadata implements procs.Processor.
func (d *PCMDecoder) Metadata() ([]byte, error) {
	return json.Marshal(Metadata{
		SampleRate:    int(d.lastRate.Load()),
		Channels:      d.ChannelCount,
		FramesDecoded: d.framesDecoded.Load(),
		FramesDropped: d.framesDropped.Load(),
	})
}

func (d *PCMDecoder) decode(in *frame.Frame) error {
	defer in.Release()

	if len(in.Planes) == 0 {
		return nil
	}

	samples, err := d.Decode(in.Planes[0])
	if err != nil {
		d.Parent.Log(logger.Warn, "%v", err)
		d.framesDropped.Inc()
		return nil
	}

	sampleRate := in.SampleRate
	if sampleRate == 0 {
		sampleRate = d.SampleRate
	}

	channels := in.ChannelCount
	if channels == 0 {
		channels = d.ChannelCount
	}

	d.lastRate.Store(int64(sampleRate))

	out := &frame.Frame{
		Planes:       [][]byte{samples},
		PTS:          in.PTS,
		ESID:         in.ESID,
		SampleRate:   sampleRate,
		ChannelCount: channels,
	}
	out.Initialize()

	err = d.out.Push(out)
	if err != nil {
		out.Release()
		d.framesDropped.Inc()
		return nil
	}

	d.framesDecoded.Inc()
	return nil
}
