package gaclient

import (
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/frame"
	"github.com/bluenviron/gaclient/pkg/liberrors"
	"github.com/bluenviron/gaclient/pkg/procs"
)

const (
	// period between attempts to send a frame to a decoder that is full.
	sendRetryPeriod = time.Millisecond

	// after this, a frame is dropped and the decoder is marked as stalled.
	sendRetryTimeout = 200 * time.Millisecond

	// maximum number of frames held while stream metadata is not ready.
	maxPendingFrames = 64
)

// runDemuxer receives frames from the demuxer and routes them to decoders.
// Frames received before stream discovery succeeds are held and routed afterwards.
func (c *Client) runDemuxer() error {
	discovered := false

	var pending []*frame.Frame
	defer func() {
		for _, f := range pending {
			f.Release()
		}
	}()

	for c.running.Load() {
		id := int(c.demuxerID.Load())
		if id < 0 {
			return nil
		}

		f, err := c.graph.RecvFrame(id)
		if err != nil {
			switch {
			case errors.Is(err, procs.ErrTryAgain):
				runtime.Gosched()

			case procs.IsTerminal(err):
				if !c.running.Load() {
					return nil
				}
				return errors.Wrap(err, "demuxer stopped")

			default:
				c.Log(logger.Warn, "unable to receive from demuxer: %v", err)
			}
			continue
		}

		c.activity()

		if !discovered {
			err = c.discover()
			if err != nil {
				var notReady liberrors.ErrMetadataNotReady
				if errors.As(err, &notReady) {
					if len(pending) == maxPendingFrames {
						pending[0].Release()
						pending = pending[1:]
					}
					pending = append(pending, f)
					continue
				}
				f.Release()
				return errors.Wrap(err, "stream discovery failed")
			}
			discovered = true

			for len(pending) != 0 {
				c.route(pending[0])
				pending[0].Release()
				pending = pending[1:]
			}
		}

		c.route(f)
		f.Release()
	}

	return nil
}

// route forwards a frame to the decoder of its elementary stream.
// Frames of unknown streams are dropped.
// A decoder that does not accept a frame within sendRetryTimeout is marked as stalled,
// and it gets a single attempt per frame until it accepts one again.
func (c *Client) route(f *frame.Frame) {
	s, ok := c.registry.lookup(f.ESID)
	if !ok {
		return
	}

	deadline := time.Now().Add(sendRetryTimeout)

	for c.running.Load() {
		id := int(s.processorID.Load())
		if id < 0 {
			return
		}

		err := c.graph.SendFrame(id, f)
		if err == nil {
			if s.stalled.CompareAndSwap(true, false) {
				c.Log(logger.Info, "decoder of elementary stream %d is accepting frames again", f.ESID)
			}
			return
		}

		if !errors.Is(err, procs.ErrTryAgain) {
			c.Log(logger.Warn, "unable to send frame of elementary stream %d: %v", f.ESID, err)
			return
		}

		if s.stalled.Load() || time.Now().After(deadline) {
			s.framesDropped.Inc()
			if s.stalled.CompareAndSwap(false, true) {
				c.Log(logger.Warn, "decoder of elementary stream %d is not accepting frames, dropping", f.ESID)
			}
			return
		}

		time.Sleep(sendRetryPeriod)
	}
}
