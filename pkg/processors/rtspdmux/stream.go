package rtspdmux

import (
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v5/pkg/description"
	"github.com/bluenviron/gortsplib/v5/pkg/format"
	"github.com/bluenviron/gortsplib/v5/pkg/format/rtph264"
	"github.com/bluenviron/gortsplib/v5/pkg/format/rtph265"
	"github.com/bluenviron/gortsplib/v5/pkg/format/rtpmpeg1audio"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

// errSkip is returned by depacketizers when a packet does not complete an access unit.
var errSkip = errors.New("skip")

type depacketizer func(pkt *rtp.Packet) ([][]byte, error)

// encodingName returns the SDP encoding name of a format.
func encodingName(forma format.Format) string {
	switch forma := forma.(type) {
	case *format.H264:
		return "H264"

	case *format.H265:
		return "H265"

	case *format.G711:
		if forma.MULaw {
			return "PCMU"
		}
		return "PCMA"

	case *format.LPCM:
		return "L" + strconv.Itoa(forma.BitDepth)

	case *format.MPEG1Audio:
		return "MPA"
	}

	if rtpMap := forma.RTPMap(); rtpMap != "" {
		return strings.SplitN(rtpMap, "/", 2)[0]
	}
	return forma.Codec()
}

func channelCount(forma format.Format) int {
	switch forma := forma.(type) {
	case *format.G711:
		return forma.ChannelCount

	case *format.LPCM:
		return forma.ChannelCount
	}
	return 0
}

func newDepacketizer(forma format.Format) (depacketizer, error) {
	switch forma := forma.(type) {
	case *format.H264:
		dec, err := forma.CreateDecoder()
		if err != nil {
			return nil, err
		}

		return func(pkt *rtp.Packet) ([][]byte, error) {
			au, err := dec.Decode(pkt)
			if err != nil {
				if errors.Is(err, rtph264.ErrMorePacketsNeeded) ||
					errors.Is(err, rtph264.ErrNonStartingPacketAndNoPrevious) {
					return nil, errSkip
				}
				return nil, err
			}

			buf, err := h264.AnnexB(au).Marshal()
			if err != nil {
				return nil, err
			}
			return [][]byte{buf}, nil
		}, nil

	case *format.H265:
		dec, err := forma.CreateDecoder()
		if err != nil {
			return nil, err
		}

		return func(pkt *rtp.Packet) ([][]byte, error) {
			au, err := dec.Decode(pkt)
			if err != nil {
				if errors.Is(err, rtph265.ErrMorePacketsNeeded) ||
					errors.Is(err, rtph265.ErrNonStartingPacketAndNoPrevious) {
					return nil, errSkip
				}
				return nil, err
			}

			buf, err := h264.AnnexB(au).Marshal()
			if err != nil {
				return nil, err
			}
			return [][]byte{buf}, nil
		}, nil

	case *format.G711:
		dec, err := forma.CreateDecoder()
		if err != nil {
			return nil, err
		}

		return func(pkt *rtp.Packet) ([][]byte, error) {
			samples, err := dec.Decode(pkt)
			if err != nil {
				return nil, err
			}
			return [][]byte{samples}, nil
		}, nil

	case *format.LPCM:
		dec, err := forma.CreateDecoder()
		if err != nil {
			return nil, err
		}

		return func(pkt *rtp.Packet) ([][]byte, error) {
			samples, err := dec.Decode(pkt)
			if err != nil {
				return nil, err
			}
			return [][]byte{samples}, nil
		}, nil

	case *format.MPEG1Audio:
		dec, err := forma.CreateDecoder()
		if err != nil {
			return nil, err
		}

		return func(pkt *rtp.Packet) ([][]byte, error) {
			frames, err := dec.Decode(pkt)
			if err != nil {
				if errors.Is(err, rtpmpeg1audio.ErrMorePacketsNeeded) ||
					errors.Is(err, rtpmpeg1audio.ErrNonStartingPacketAndNoPrevious) {
					return nil, errSkip
				}
				return nil, err
			}
			return frames, nil
		}, nil
	}

	// forward the raw payload of formats without a depacketizer.
	return func(pkt *rtp.Packet) ([][]byte, error) {
		return [][]byte{pkt.Payload}, nil
	}, nil
}

type timestampUnwrapper struct {
	initialized bool
	prev        uint32
	acc         int64
}

func (u *timestampUnwrapper) unwrap(ts uint32) int64 {
	if !u.initialized {
		u.initialized = true
		u.prev = ts
		return 0
	}

	u.acc += int64(int32(ts - u.prev))
	u.prev = ts
	return u.acc
}

func timestampToDuration(v int64, clockRate int) time.Duration {
	cr := int64(clockRate)
	return time.Duration(v/cr)*time.Second + time.Duration((v%cr)*int64(time.Second)/cr)
}

// sequenceTracker counts RTP packets that never arrived.
// Packets older than the last one are considered late and are not counted.
type sequenceTracker struct {
	initialized bool
	expected    uint16
}

func (t *sequenceTracker) process(seq uint16) uint64 {
	if !t.initialized {
		t.initialized = true
		t.expected = seq + 1
		return 0
	}

	diff := seq - t.expected
	if diff >= 0x8000 { // late or duplicate
		return 0
	}

	t.expected = seq + 1
	return uint64(diff)
}

// stream is an elementary stream.
type stream struct {
	id         int
	media      *description.Media
	forma      format.Format
	mimeType   string
	clockRate  int
	sampleRate int
	channels   int
	depack     depacketizer
	unwrapper  timestampUnwrapper
	sequence   sequenceTracker
}

func newStream(id int, medi *description.Media) (*stream, error) {
	forma := medi.Formats[0]

	depack, err := newDepacketizer(forma)
	if err != nil {
		return nil, err
	}

	// MPEG-1 audio uses a 90kHz clock, the sample rate is in frame headers.
	sampleRate := 0
	if medi.Type == description.MediaTypeAudio {
		if _, ok := forma.(*format.MPEG1Audio); !ok {
			sampleRate = forma.ClockRate()
		}
	}

	return &stream{
		id:         id,
		media:      medi,
		forma:      forma,
		mimeType:   string(medi.Type) + "/" + encodingName(forma),
		clockRate:  forma.ClockRate(),
		sampleRate: sampleRate,
		channels:   channelCount(forma),
		depack:     depack,
	}, nil
}
