package gaclient

import (
	"strings"
)

const mimeUnknown = "n/a"

// CodecKind is a codec that a decoder can be launched for.
type CodecKind int

// codec kinds.
const (
	CodecKindUnsupported CodecKind = iota
	CodecKindH264
	CodecKindH265
	CodecKindG711U
	CodecKindG711A
	CodecKindLPCM
	CodecKindMP3
)

var codecKindLabels = map[CodecKind]string{
	CodecKindUnsupported: "unsupported",
	CodecKindH264:        "H264",
	CodecKindH265:        "H265",
	CodecKindG711U:       "G711 u-law",
	CodecKindG711A:       "G711 A-law",
	CodecKindLPCM:        "LPCM",
	CodecKindMP3:         "MP3",
}

var codecKindDecoders = map[CodecKind]string{
	CodecKindH264:  "h264_dec",
	CodecKindH265:  "h265_dec",
	CodecKindG711U: "g711u_dec",
	CodecKindG711A: "g711a_dec",
	CodecKindLPCM:  "lpcm_dec",
	CodecKindMP3:   "mp3_dec",
}

// String implements fmt.Stringer.
func (k CodecKind) String() string {
	if l, ok := codecKindLabels[k]; ok {
		return l
	}
	return "unknown"
}

// IsVideo returns whether the codec is a video codec.
func (k CodecKind) IsVideo() bool {
	return k == CodecKindH264 || k == CodecKindH265
}

// IsAudio returns whether the codec is an audio codec.
func (k CodecKind) IsAudio() bool {
	switch k {
	case CodecKindG711U, CodecKindG711A, CodecKindLPCM, CodecKindMP3:
		return true
	}
	return false
}

// DecoderName returns the name of the decoder processor.
func (k CodecKind) DecoderName() string {
	return codecKindDecoders[k]
}

// parseMIME splits a MIME type into type and subtype.
// Missing parts are replaced by "n/a".
func parseMIME(mime string) (string, string) {
	typ, sub, _ := strings.Cut(mime, "/")

	if typ == "" {
		typ = mimeUnknown
	}
	if sub == "" {
		sub = mimeUnknown
	}

	return typ, sub
}

// codecKindFromSubtype maps a MIME subtype to a codec kind.
func codecKindFromSubtype(sub string) CodecKind {
	switch strings.ToUpper(sub) {
	case "H264":
		return CodecKindH264

	case "H265", "HEVC":
		return CodecKindH265

	case "PCMU":
		return CodecKindG711U

	case "PCMA":
		return CodecKindG711A

	case "L16":
		return CodecKindLPCM

	case "MPA", "MP3":
		return CodecKindMP3
	}

	return CodecKindUnsupported
}
