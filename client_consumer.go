package gaclient

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
	"github.com/bluenviron/gaclient/pkg/procs"
)

// recvDecoded receives a frame from the decoder of a slot.
// It returns nil, nil when the receive must be retried.
func (c *Client) recvDecoded(s *decoderSlot) (*frame.Frame, error) {
	id := int(s.processorID.Load())
	if id < 0 {
		return nil, liberrors.ErrProcessorNotFound{ID: id}
	}

	f, err := c.graph.RecvFrame(id)
	if err != nil {
		switch {
		case errors.Is(err, procs.ErrTryAgain):
			runtime.Gosched()
			return nil, nil

		case procs.IsTerminal(err):
			return nil, err

		default:
			c.Log(logger.Warn, "unable to receive from decoder of elementary stream %d: %v", s.esID, err)
			return nil, nil
		}
	}

	c.activity()
	return f, nil
}

func (c *Client) runVideoConsumer(s *decoderSlot) {
	s.status <- c.runVideoConsumerInner(s)
}

func (c *Client) runVideoConsumerInner(s *decoderSlot) error {
	q := c.queues[s.channel]

	for c.running.Load() {
		f, err := c.recvDecoded(s)
		if err != nil {
			return nil
		}
		if f == nil {
			continue
		}

		err = q.Push(f)
		if err != nil {
			f.Release()
			if !errors.Is(err, fifo.ErrFull) {
				return err
			}
			continue
		}

		// the queue owns the frame from now on.
		if c.OnFrameReady != nil {
			c.OnFrameReady(s.channel)
		}
	}

	return nil
}

func (c *Client) runAudioConsumer(s *decoderSlot) {
	s.status <- c.runAudioConsumerInner(s)
}

func (c *Client) runAudioConsumerInner(s *decoderSlot) error {
	sampleRate := c.AudioSampleRate
	channels := c.AudioChannels

	var dev AudioDevice
	if c.AudioSink != nil {
		var err error
		dev, err = c.AudioSink.Open(sampleRate, channels, c.AudioFormat)
		if err != nil {
			return errors.Wrap(err, "unable to open audio device")
		}
	}

	defer func() {
		if dev != nil {
			dev.Close() //nolint:errcheck
		}
	}()

	for c.running.Load() {
		f, err := c.recvDecoded(s)
		if err != nil {
			return nil
		}
		if f == nil {
			continue
		}

		if c.AudioSink != nil && f.SampleRate != 0 &&
			(f.SampleRate != sampleRate || (f.ChannelCount != 0 && f.ChannelCount != channels)) {
			sampleRate = f.SampleRate
			if f.ChannelCount != 0 {
				channels = f.ChannelCount
			}

			c.Log(logger.Info, "reopening audio device at %d Hz, %d channels", sampleRate, channels)

			if dev != nil {
				dev.Close() //nolint:errcheck
			}

			dev, err = c.AudioSink.Open(sampleRate, channels, c.AudioFormat)
			if err != nil {
				c.Log(logger.Error, "unable to open audio device: %v", err)
				dev = nil
			}
		}

		if dev != nil && len(f.Planes) != 0 {
			err = dev.QueueSamples(f.Planes[0])
			if err != nil {
				c.Log(logger.Warn, "unable to play audio: %v", err)
			}
		}

		f.Release()
	}

	return nil
}
