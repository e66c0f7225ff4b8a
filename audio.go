package gaclient

// SampleFormat is an audio sample format.
type SampleFormat int

// sample formats.
const (
	// signed 16-bit little-endian, interleaved.
	SampleFormatS16 SampleFormat = iota
)

// String implements fmt.Stringer.
func (f SampleFormat) String() string {
	if f == SampleFormatS16 {
		return "s16"
	}
	return "unknown"
}

// AudioSink opens audio output devices.
type AudioSink interface {
	Open(sampleRate int, channelCount int, format SampleFormat) (AudioDevice, error)
}

// AudioDevice is an open audio output device.
// It buffers samples internally.
type AudioDevice interface {
	QueueSamples(buf []byte) error
	Close() error
}
