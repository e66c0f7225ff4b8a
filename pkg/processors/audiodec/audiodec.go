// Package audiodec contains the audio decoder processors.
// All of them emit signed 16-bit little-endian interleaved samples.
package audiodec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/g711"

	"github.com/bluenviron/gaclient/pkg/procs"
)

func init() {
	procs.MustRegister("g711u_dec", func(p procs.Params) (procs.Processor, error) {
		return newPCMFromParams(p, decodeMulaw, 8000, 1)
	})
	procs.MustRegister("g711a_dec", func(p procs.Params) (procs.Processor, error) {
		return newPCMFromParams(p, decodeAlaw, 8000, 1)
	})
	procs.MustRegister("lpcm_dec", func(p procs.Params) (procs.Processor, error) {
		return newPCMFromParams(p, decodeL16, 44100, 2)
	})
	procs.MustRegister("mp3_dec", newMP3FromParams)
}

// swap16 converts 16-bit samples between big-endian and little-endian, in place.
func swap16(buf []byte) []byte {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
	return buf
}

func decodeMulaw(in []byte) ([]byte, error) {
	var raw g711.Mulaw
	raw.Unmarshal(in)
	return swap16(raw), nil
}

func decodeAlaw(in []byte) ([]byte, error) {
	var raw g711.Alaw
	raw.Unmarshal(in)
	return swap16(raw), nil
}

func decodeL16(in []byte) ([]byte, error) {
	return swap16(append([]byte(nil), in...)), nil
}
