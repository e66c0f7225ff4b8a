// Package audiosink contains audio outputs that do not need an audio device.
package audiosink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient"
	"github.com/bluenviron/gaclient/internal/logger"
)

// None is an audio sink that discards samples.
type None struct {
	queued atomic.Uint64
}

// Open implements gaclient.AudioSink.
func (s *None) Open(_ int, _ int, format gaclient.SampleFormat) (gaclient.AudioDevice, error) {
	if format != gaclient.SampleFormatS16 {
		return nil, fmt.Errorf("unsupported sample format: %v", format)
	}
	return &noneDevice{s: s}, nil
}

// Queued returns the number of discarded bytes.
func (s *None) Queued() uint64 {
	return s.queued.Load()
}

type noneDevice struct {
	s *None
}

func (d *noneDevice) QueueSamples(buf []byte) error {
	d.s.queued.Add(uint64(len(buf)))
	return nil
}

func (d *noneDevice) Close() error {
	return nil
}

// File is an audio sink that writes raw PCM samples to a file.
// The first opened format is written to Path; other formats are written to
// files whose names carry the sample rate and channel count.
type File struct {
	// destination path.
	Path string

	// parent.
	Parent logger.Writer

	mutex sync.Mutex
	first string
}

// Log implements logger.Writer.
func (s *File) Log(level logger.Level, format string, args ...any) {
	if s.Parent != nil {
		s.Parent.Log(level, "[audio] "+format, args...)
	}
}

func formatKey(sampleRate int, channelCount int) string {
	return fmt.Sprintf("%dhz_%dch", sampleRate, channelCount)
}

func (s *File) pathFor(sampleRate int, channelCount int) string {
	key := formatKey(sampleRate, channelCount)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.first == "" {
		s.first = key
	}

	if key == s.first {
		return s.Path
	}

	ext := filepath.Ext(s.Path)
	return strings.TrimSuffix(s.Path, ext) + "_" + key + ext
}

// Open implements gaclient.AudioSink.
func (s *File) Open(sampleRate int, channelCount int, format gaclient.SampleFormat) (gaclient.AudioDevice, error) {
	if format != gaclient.SampleFormatS16 {
		return nil, fmt.Errorf("unsupported sample format: %v", format)
	}

	fpath := s.pathFor(sampleRate, channelCount)

	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open audio file")
	}

	s.Log(logger.Info, "writing %s %d Hz %d channels to %s", format, sampleRate, channelCount, fpath)

	return &fileDevice{f: f}, nil
}

type fileDevice struct {
	f *os.File
}

func (d *fileDevice) QueueSamples(buf []byte) error {
	_, err := d.f.Write(buf)
	return err
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}
