// Package frame contains the reference-counted frame exchanged between processors.
package frame

import (
	"time"

	"go.uber.org/atomic"
)

type payload struct {
	refs   atomic.Int32
	onFree func()
}

// Frame is a reference-counted media buffer.
//
// Each handle is owned by one stage at a time and must be released exactly once.
// Handles returned by Duplicate share the same payload, that is freed when the
// last handle is released.
type Frame struct {
	// per-plane data.
	Planes [][]byte

	// per-plane line strides.
	// It defaults to the plane length.
	Strides []int

	// per-plane picture width, in pixels.
	Widths []int

	// per-plane picture height, in pixels.
	Heights []int

	// presentation timestamp.
	PTS time.Duration

	// elementary stream id.
	ESID int

	// audio sample rate.
	SampleRate int

	// audio channel count.
	ChannelCount int

	// called once when the last handle is released.
	OnFree func()

	shared   *payload
	released atomic.Bool
}

// Initialize initializes a Frame.
func (f *Frame) Initialize() {
	if f.Strides == nil {
		f.Strides = make([]int, len(f.Planes))
		for i, p := range f.Planes {
			f.Strides[i] = len(p)
		}
	}

	f.shared = &payload{onFree: f.OnFree}
	f.shared.refs.Store(1)
}

// Duplicate returns a new handle to the same payload.
// Metadata is copied, plane data is shared and must not be mutated.
func (f *Frame) Duplicate() *Frame {
	if f.released.Load() {
		panic("duplicate of a released frame")
	}

	f.shared.refs.Inc()

	return &Frame{
		Planes:       append([][]byte(nil), f.Planes...),
		Strides:      append([]int(nil), f.Strides...),
		Widths:       append([]int(nil), f.Widths...),
		Heights:      append([]int(nil), f.Heights...),
		PTS:          f.PTS,
		ESID:         f.ESID,
		SampleRate:   f.SampleRate,
		ChannelCount: f.ChannelCount,
		OnFree:       f.OnFree,
		shared:       f.shared,
	}
}

// Release releases the handle.
func (f *Frame) Release() {
	if !f.released.CompareAndSwap(false, true) {
		panic("frame released twice")
	}

	if f.shared.refs.Dec() == 0 && f.shared.onFree != nil {
		f.shared.onFree()
	}
}

// Refs returns the number of live handles to the payload.
func (f *Frame) Refs() int {
	return int(f.shared.refs.Load())
}

// Size returns the total payload size in bytes.
func (f *Frame) Size() int {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	return n
}
