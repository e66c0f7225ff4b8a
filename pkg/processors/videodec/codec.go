package videodec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// Codec is a video codec handled by the decoder.
type Codec interface {
	// name of the codec.
	String() string

	// whether the NALU contains a sequence parameter set.
	isSPS(nalu []byte) bool

	// picture size from a sequence parameter set.
	geometry(sps []byte) (int, int, error)
}

// CodecH264 is the H264 codec.
type CodecH264 struct{}

// String implements Codec.
func (CodecH264) String() string {
	return "H264"
}

func (CodecH264) isSPS(nalu []byte) bool {
	return h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeSPS
}

func (CodecH264) geometry(buf []byte) (int, int, error) {
	var sps h264.SPS
	err := sps.Unmarshal(buf)
	if err != nil {
		return 0, 0, err
	}
	return sps.Width(), sps.Height(), nil
}

// CodecH265 is the H265 codec.
type CodecH265 struct{}

// String implements Codec.
func (CodecH265) String() string {
	return "H265"
}

func (CodecH265) isSPS(nalu []byte) bool {
	return h265.NALUType((nalu[0]>>1)&0b111111) == h265.NALUType_SPS_NUT
}

func (CodecH265) geometry(buf []byte) (int, int, error) {
	var sps h265.SPS
	err := sps.Unmarshal(buf)
	if err != nil {
		return 0, 0, err
	}
	return sps.Width(), sps.Height(), nil
}
