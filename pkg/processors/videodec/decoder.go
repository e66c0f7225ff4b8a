// Package videodec contains the h264_dec and h265_dec processors.
//
// They split access units, follow sequence parameter sets to track the picture size
// and emit one frame per access unit. Pixel reconstruction is performed by the codec backend
// that consumes the emitted bitstream.
package videodec

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/asyncprocessor"
	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/procs"
)

func init() {
	procs.MustRegister("h264_dec", func(p procs.Params) (procs.Processor, error) {
		return newFromParams(CodecH264{}, p)
	})
	procs.MustRegister("h265_dec", func(p procs.Params) (procs.Processor, error) {
		return newFromParams(CodecH265{}, p)
	})
}

func newFromParams(codec Codec, p procs.Params) (procs.Processor, error) {
	bufferSize, err := p.Settings.Int("buffer_size", 64)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		Codec:      codec,
		BufferSize: bufferSize,
		Parent:     p.Log,
	}
	err = d.Initialize()
	if err != nil {
		return nil, err
	}

	return d, nil
}

var startCode = []byte{0, 0, 0, 1}

// Metadata is the metadata of the decoder.
type Metadata struct {
	Codec         string `json:"codec"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FramesDecoded uint64 `json:"frames_decoded"`
	FramesDropped uint64 `json:"frames_dropped"`
}

// Decoder is a video decoder processor.
type Decoder struct {
	Codec Codec

	// size of the input and output queues.
	// It defaults to 64.
	BufferSize int

	// parent.
	Parent logger.Writer

	async *asyncprocessor.Processor[*frame.Frame]
	out   *fifo.Queue[*frame.Frame]

	width         *atomic.Int64
	height        *atomic.Int64
	framesDecoded *atomic.Uint64
	framesDropped *atomic.Uint64
}

// Initialize initializes the Decoder.
func (d *Decoder) Initialize() error {
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

	d.width = atomic.NewInt64(0)
	d.height = atomic.NewInt64(0)
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

func releaseFrame(f *frame.Frame) {
	f.Release()
}

// Close implements procs.Processor.
func (d *Decoder) Close() {
	d.async.Close()
	d.out.Close()
}

// Send implements procs.Processor.
func (d *Decoder) Send(f *frame.Frame) error {
	dup := f.Duplicate()
	if !d.async.Push(dup) {
		dup.Release()
		return procs.ErrTryAgain
	}
	return nil
}

// Output implements procs.Processor.
func (d *Decoder) Output() *fifo.Queue[*frame.Frame] {
	return d.out
}

// Metadata implements procs.Processor.
func (d *Decoder) Metadata() ([]byte, error) {
	return json.Marshal(Metadata{
		Codec:         d.Codec.String(),
		Width:         int(d.width.Load()),
		Height:        int(d.height.Load()),
		FramesDecoded: d.framesDecoded.Load(),
		FramesDropped: d.framesDropped.Load(),
	})
}

// splitAccessUnit returns the NALUs of an access unit, that is either
// in Annex-B format or made of one NALU per plane.
func splitAccessUnit(planes [][]byte) ([][]byte, error) {
	if len(planes) == 1 && hasStartCode(planes[0]) {
		var au h264.AnnexB
		err := au.Unmarshal(planes[0])
		if err != nil {
			return nil, err
		}
		return au, nil
	}

	return planes, nil
}

func (d *Decoder) decode(in *frame.Frame) error {
	defer in.Release()

	if len(in.Planes) == 0 || len(in.Planes[0]) == 0 {
		return nil
	}

	nalus, err := splitAccessUnit(in.Planes)
	if err != nil {
		d.Parent.Log(logger.Warn, "unable to split access unit: %v", err)
		return nil
	}

	for _, nalu := range nalus {
		if len(nalu) == 0 || !d.Codec.isSPS(nalu) {
			continue
		}

		w, h, err := d.Codec.geometry(nalu)
		if err != nil {
			d.Parent.Log(logger.Warn, "invalid SPS: %v", err)
			continue
		}

		if int64(w) != d.width.Load() || int64(h) != d.height.Load() {
			d.Parent.Log(logger.Info, "%s %dx%d", d.Codec, w, h)
			d.width.Store(int64(w))
			d.height.Store(int64(h))
		}
	}

	// access units that precede the first SPS cannot be decoded.
	if d.width.Load() == 0 {
		d.framesDropped.Inc()
		return nil
	}

	var bitstream []byte
	if len(in.Planes) == 1 && hasStartCode(in.Planes[0]) {
		bitstream = in.Planes[0]
	} else {
		bitstream, err = h264.AnnexB(nalus).Marshal()
		if err != nil {
			return errors.Wrap(err, "unable to encode access unit")
		}
	}

	out := &frame.Frame{
		Planes:  [][]byte{bitstream},
		Widths:  []int{int(d.width.Load())},
		Heights: []int{int(d.height.Load())},
		PTS:     in.PTS,
		ESID:    in.ESID,
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

func hasStartCode(buf []byte) bool {
	return bytes.HasPrefix(buf, startCode) || bytes.HasPrefix(buf, startCode[1:])
}
