package gaclient

import (
	"go.uber.org/atomic"
)

// StreamInfo describes an elementary stream that has been assigned a decoder.
type StreamInfo struct {
	// elementary stream id.
	ID int

	// MIME type announced by the demuxer.
	MIMEType string

	// codec.
	Kind CodecKind

	// video channel, or -1 for audio.
	Channel int

	// decoder processor id, or -1 after the decoder has been deleted.
	ProcessorID int

	// frames dropped because the decoder was not accepting them.
	FramesDropped uint64
}

// decoderSlot binds an elementary stream to a decoder and its consumer.
type decoderSlot struct {
	esID        int
	mimeType    string
	kind        CodecKind
	channel     int
	processorID *atomic.Int64

	// set when the decoder stopped accepting frames.
	stalled       *atomic.Bool
	framesDropped *atomic.Uint64

	// receives the consumer status when it exits.
	status chan error
}

func newDecoderSlot(esID int, mimeType string, kind CodecKind, channel int) *decoderSlot {
	return &decoderSlot{
		esID:          esID,
		mimeType:      mimeType,
		kind:          kind,
		channel:       channel,
		processorID:   atomic.NewInt64(-1),
		stalled:       atomic.NewBool(false),
		framesDropped: atomic.NewUint64(0),
		status:        make(chan error, 1),
	}
}

// release invalidates the processor id and returns the previous one.
func (s *decoderSlot) release() int {
	return int(s.processorID.Swap(-1))
}

func (s *decoderSlot) info() StreamInfo {
	return StreamInfo{
		ID:            s.esID,
		MIMEType:      s.mimeType,
		Kind:          s.kind,
		Channel:       s.channel,
		ProcessorID:   int(s.processorID.Load()),
		FramesDropped: s.framesDropped.Load(),
	}
}

// streamRegistry maps elementary stream ids to decoder slots.
// It is written by the discovery step only.
type streamRegistry struct {
	video   []*decoderSlot
	audio   *decoderSlot
	retired []*decoderSlot
	ids     map[int]struct{}
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{
		ids: make(map[int]struct{}),
	}
}

func (r *streamRegistry) has(esID int) bool {
	_, ok := r.ids[esID]
	return ok
}

func (r *streamRegistry) nextChannel() int {
	return len(r.video)
}

func (r *streamRegistry) addVideo(s *decoderSlot) {
	r.video = append(r.video, s)
	r.ids[s.esID] = struct{}{}
}

// setAudio stores the audio slot and returns the one it replaces, if any.
func (r *streamRegistry) setAudio(s *decoderSlot) *decoderSlot {
	prev := r.audio
	if prev != nil {
		r.retired = append(r.retired, prev)
		delete(r.ids, prev.esID)
	}

	r.audio = s
	r.ids[s.esID] = struct{}{}
	return prev
}

// lookup returns the slot that frames of the elementary stream are routed to.
// Audio is checked first, then video channels in ascending order.
func (r *streamRegistry) lookup(esID int) (*decoderSlot, bool) {
	if r.audio != nil && r.audio.esID == esID {
		return r.audio, true
	}

	for _, s := range r.video {
		if s.esID == esID {
			return s, true
		}
	}

	return nil, false
}

// all returns every slot, including replaced audio slots.
func (r *streamRegistry) all() []*decoderSlot {
	ret := make([]*decoderSlot, 0, len(r.video)+len(r.retired)+1)
	ret = append(ret, r.video...)
	ret = append(ret, r.retired...)
	if r.audio != nil {
		ret = append(ret, r.audio)
	}
	return ret
}

func (r *streamRegistry) infos() []StreamInfo {
	var ret []StreamInfo
	for _, s := range r.video {
		ret = append(ret, s.info())
	}
	if r.audio != nil {
		ret = append(ret, r.audio.info())
	}
	return ret
}
