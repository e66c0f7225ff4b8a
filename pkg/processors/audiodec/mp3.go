package audiodec

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/asyncprocessor"
	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/procs"
)

const (
	// go-mp3 always outputs stereo S16LE.
	mp3Channels = 2

	// one MPEG-1 layer III frame: 1152 samples.
	mp3ChunkSize = 1152 * mp3Channels * 2
)

var errDecoderStopped = errors.New("MPEG audio decoder stopped")

func newMP3FromParams(p procs.Params) (procs.Processor, error) {
	bufferSize, err := p.Settings.Int("buffer_size", 64)
	if err != nil {
		return nil, err
	}

	d := &MP3Decoder{
		BufferSize: bufferSize,
		Parent:     p.Log,
	}
	err = d.Initialize()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// MP3Decoder is a MPEG-1/2 audio layer III decoder.
type MP3Decoder struct {
	// size of the input and output queues.
	// It defaults to 64.
	BufferSize int

	// parent.
	Parent logger.Writer

	async *asyncprocessor.Processor[*frame.Frame]
	out   *fifo.Queue[*frame.Frame]
	pr    *io.PipeReader
	pw    *io.PipeWriter

	esID          *atomic.Int64
	basePTS       *atomic.Duration
	sampleRate    *atomic.Int64
	framesDecoded *atomic.Uint64
	framesDropped *atomic.Uint64

	decoderDone chan struct{}
}

// Initialize initializes the MP3Decoder.
func (d *MP3Decoder) Initialize() error {
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

	d.esID = atomic.NewInt64(-1)
	d.basePTS = atomic.NewDuration(0)
	d.sampleRate = atomic.NewInt64(0)
	d.framesDecoded = atomic.NewUint64(0)
	d.framesDropped = atomic.NewUint64(0)

	d.pr, d.pw = io.Pipe()

	d.async = &asyncprocessor.Processor[*frame.Frame]{
		BufferSize: d.BufferSize,
		OnItem:     d.feed,
		OnDiscard:  releaseFrame,
		OnError: func(_ context.Context, err error) {
			d.Parent.Log(logger.Error, "%v", err)
		},
	}
	err = d.async.Initialize()
	if err != nil {
		return err
	}

	d.decoderDone = make(chan struct{})

	d.async.Start()
	go d.runDecoder()

	return nil
}

// Close implements procs.Processor.
func (d *MP3Decoder) Close() {
	d.pr.Close()
	d.async.Close()
	<-d.decoderDone
	d.out.Close()
}

// Send implements procs.Processor.
func (d *MP3Decoder) Send(f *frame.Frame) error {
	dup := f.Duplicate()
	if !d.async.Push(dup) {
		dup.Release()
		return procs.ErrTryAgain
	}
	return nil
}

// Output implements procs.Processor.
func (d *MP3Decoder) Output() *fifo.Queue[*frame.Frame] {
	return d.out
}

// Metadata implements procs.Processor.
func (d *MP3Decoder) Metadata() ([]byte, error) {
	return json.Marshal(Metadata{
		SampleRate:    int(d.sampleRate.Load()),
		Channels:      mp3Channels,
		FramesDecoded: d.framesDecoded.Load(),
		FramesDropped: d.framesDropped.Load(),
	})
}

// feed checks MPEG audio frames and passes them to the decoder routine.
func (d *MP3Decoder) feed(in *frame.Frame) error {
	defer in.Release()

	if len(in.Planes) == 0 {
		return nil
	}

	buf := in.Planes[0]

	var h mpeg1audio.FrameHeader
	err := h.Unmarshal(buf)
	if err != nil {
		d.Parent.Log(logger.Warn, "invalid MPEG audio frame: %v", err)
		d.framesDropped.Inc()
		return nil
	}

	if h.Layer != 3 {
		if d.framesDropped.Inc() == 1 {
			d.Parent.Log(logger.Warn, "MPEG audio layer %d is not supported, dropping frames", h.Layer)
		}
		return nil
	}

	if d.esID.CompareAndSwap(-1, int64(in.ESID)) {
		d.basePTS.Store(in.PTS)
	}

	// once the decoder routine has exited, writes fail immediately
	// and frames are dropped instead of blocking the worker.
	_, err = d.pw.Write(buf)
	if err != nil {
		d.framesDropped.Inc()
	}

	return nil
}

func (d *MP3Decoder) runDecoder() {
	defer close(d.decoderDone)
	defer d.pr.CloseWithError(errDecoderStopped)

	// NewDecoder blocks until the first frame is available.
	dec, err := mp3.NewDecoder(d.pr)
	if err != nil {
		if !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, io.EOF) {
			d.Parent.Log(logger.Error, "unable to start MPEG audio decoder: %v", err)
		}
		return
	}

	rate := dec.SampleRate()
	d.sampleRate.Store(int64(rate))
	d.Parent.Log(logger.Info, "MPEG audio %d Hz", rate)

	var samples int64

	for {
		buf := make([]byte, mp3ChunkSize)
		n, err := dec.Read(buf)
		if n > 0 {
			pts := d.basePTS.Load() + time.Duration(samples)*time.Second/time.Duration(rate)
			samples += int64(n / (mp3Channels * 2))

			out := &frame.Frame{
				Planes:       [][]byte{buf[:n]},
				PTS:          pts,
				ESID:         int(d.esID.Load()),
				SampleRate:   rate,
				ChannelCount: mp3Channels,
			}
			out.Initialize()

			if d.out.Push(out) != nil {
				out.Release()
				d.framesDropped.Inc()
			} else {
				d.framesDecoded.Inc()
			}
		}

		if err != nil {
			if !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, io.EOF) {
				d.Parent.Log(logger.Error, "MPEG audio decoding failed: %v", err)
			}
			return
		}
	}
}
