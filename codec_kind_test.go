package gaclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMIME(t *testing.T) {
	for _, ca := range []struct {
		in  string
		typ string
		sub string
	}{
		{"video/H264", "video", "H264"},
		{"audio/MP3", "audio", "MP3"},
		{"video", "video", "n/a"},
		{"/H264", "n/a", "H264"},
		{"", "n/a", "n/a"},
		{"audio/x/y", "audio", "x/y"},
	} {
		t.Run(ca.in, func(t *testing.T) {
			typ, sub := parseMIME(ca.in)
			require.Equal(t, ca.typ, typ)
			require.Equal(t, ca.sub, sub)
		})
	}
}

func TestCodecKindFromSubtype(t *testing.T) {
	for _, ca := range []struct {
		sub     string
		kind    CodecKind
		decoder string
	}{
		{"H264", CodecKindH264, "h264_dec"},
		{"h264", CodecKindH264, "h264_dec"},
		{"H265", CodecKindH265, "h265_dec"},
		{"HEVC", CodecKindH265, "h265_dec"},
		{"PCMU", CodecKindG711U, "g711u_dec"},
		{"PCMA", CodecKindG711A, "g711a_dec"},
		{"L16", CodecKindLPCM, "lpcm_dec"},
		{"MPA", CodecKindMP3, "mp3_dec"},
		{"MP3", CodecKindMP3, "mp3_dec"},
		{"VP8", CodecKindUnsupported, ""},
		{"n/a", CodecKindUnsupported, ""},
	} {
		t.Run(ca.sub, func(t *testing.T) {
			kind := codecKindFromSubtype(ca.sub)
			require.Equal(t, ca.kind, kind)
			require.Equal(t, ca.decoder, kind.DecoderName())
		})
	}
}

func TestCodecKindClass(t *testing.T) {
	require.True(t, CodecKindH264.IsVideo())
	require.False(t, CodecKindH264.IsAudio())
	require.True(t, CodecKindMP3.IsAudio())
	require.False(t, CodecKindUnsupported.IsVideo())
	require.False(t, CodecKindUnsupported.IsAudio())
	require.Equal(t, "G711 u-law", CodecKindG711U.String())
	require.Equal(t, "unknown", CodecKind(100).String())
}
