// Package presenter contains a headless presentation layer.
package presenter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/fifo"
	"github.com/bluenviron/gaclient/pkg/frame"
)

// highest number of video channels.
const maxChannels = 16

// Source provides decoded video frames, one queue per channel.
type Source interface {
	VideoChannels() int
	VideoQueue(channel int) *fifo.Queue[*frame.Frame]
}

// ChannelStats are statistics of a video channel.
type ChannelStats struct {
	Frames uint64
	Width  int
	Height int
}

type channel struct {
	stats ChannelStats
	dump  *os.File
}

// Presenter consumes decoded video frames without displaying them.
type Presenter struct {
	// source of frames.
	Source Source

	// if set, the bitstream of each channel is appended to <DumpDirectory>/channel<N>.264.
	DumpDirectory string

	// called for each consumed frame.
	OnFrame func()

	// parent.
	Parent logger.Writer

	mutex    sync.Mutex
	channels map[int]*channel
	pending  [maxChannels]atomic.Bool
	wake     chan struct{}
}

// Initialize initializes a Presenter.
func (p *Presenter) Initialize() error {
	if p.Parent == nil {
		p.Parent = logger.Discard
	}

	if p.DumpDirectory != "" {
		err := os.MkdirAll(p.DumpDirectory, 0o755)
		if err != nil {
			return errors.Wrap(err, "unable to create dump directory")
		}
	}

	p.channels = make(map[int]*channel)
	p.wake = make(chan struct{}, 1)

	return nil
}

// Log implements logger.Writer.
func (p *Presenter) Log(level logger.Level, format string, args ...any) {
	p.Parent.Log(level, "[presenter] "+format, args...)
}

// FrameReady notifies that a frame is available in a channel queue.
// It never blocks. Notifications of the same channel are coalesced.
func (p *Presenter) FrameReady(ch int) {
	if ch < 0 || ch >= maxChannels {
		return
	}

	p.pending[ch].Store(true)

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run consumes frames until the context is canceled.
func (p *Presenter) Run(ctx context.Context) error {
	defer p.closeDumps()

	for {
		select {
		case <-p.wake:
			for ch := range maxChannels {
				if !p.pending[ch].Swap(false) {
					continue
				}

				err := p.drain(ch)
				if err != nil {
					return err
				}
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// Stats returns the statistics of a channel.
func (p *Presenter) Stats(ch int) ChannelStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if c, ok := p.channels[ch]; ok {
		return c.stats
	}
	return ChannelStats{}
}

func (p *Presenter) drain(ch int) error {
	q := p.Source.VideoQueue(ch)
	if q == nil {
		return nil
	}

	for {
		f, err := q.Pull()
		if err != nil { // empty or closed
			return nil
		}

		err = p.present(ch, f)
		f.Release()
		if err != nil {
			return err
		}
	}
}

func (p *Presenter) present(ch int, f *frame.Frame) error {
	if p.OnFrame != nil {
		p.OnFrame()
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	c, ok := p.channels[ch]
	if !ok {
		c = &channel{}
		p.channels[ch] = c
	}

	c.stats.Frames++

	if len(f.Widths) != 0 && len(f.Heights) != 0 &&
		(f.Widths[0] != c.stats.Width || f.Heights[0] != c.stats.Height) {
		c.stats.Width = f.Widths[0]
		c.stats.Height = f.Heights[0]
		p.Log(logger.Info, "channel %d: %dx%d", ch, c.stats.Width, c.stats.Height)
	}

	if p.DumpDirectory != "" && len(f.Planes) != 0 {
		if c.dump == nil {
			var err error
			c.dump, err = os.OpenFile(
				filepath.Join(p.DumpDirectory, fmt.Sprintf("channel%d.264", ch)),
				os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return errors.Wrapf(err, "unable to open dump of channel %d", ch)
			}
		}

		_, err := c.dump.Write(f.Planes[0])
		if err != nil {
			return errors.Wrapf(err, "unable to write dump of channel %d", ch)
		}
	}

	return nil
}

func (p *Presenter) closeDumps() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, c := range p.channels {
		if c.dump != nil {
			c.dump.Close()
			c.dump = nil
		}
	}
}
