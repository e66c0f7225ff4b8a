// Package watchdog contains a stall detector.
package watchdog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bluenviron/gaclient/internal/logger"
)

// ErrStall is returned by Run when no activity happened for longer than IdleMaximum.
var ErrStall = errors.New("audio/video stall")

// Watchdog detects stalls of the audio/video pipeline.
// It is armed by the first call to Feed().
type Watchdog struct {
	// idle time after which a warning is logged.
	// It defaults to 600ms.
	IdleDetection time.Duration

	// idle time after which the session is considered stalled.
	// It defaults to 3.6s.
	IdleMaximum time.Duration

	// period of checks.
	// It defaults to 1s.
	CheckPeriod time.Duration

	// parent.
	Parent logger.Writer

	// last activity, in unix nanoseconds. Zero means no activity yet.
	last atomic.Int64
}

// Initialize initializes a Watchdog.
func (w *Watchdog) Initialize() {
	if w.IdleDetection == 0 {
		w.IdleDetection = 600 * time.Millisecond
	}
	if w.IdleMaximum == 0 {
		w.IdleMaximum = 3600 * time.Millisecond
	}
	if w.CheckPeriod == 0 {
		w.CheckPeriod = time.Second
	}
	if w.Parent == nil {
		w.Parent = logger.Discard
	}
}

// Log implements logger.Writer.
func (w *Watchdog) Log(level logger.Level, format string, args ...any) {
	w.Parent.Log(level, "[watchdog] "+format, args...)
}

// Feed records activity.
func (w *Watchdog) Feed() {
	w.last.Store(time.Now().UnixNano())
}

// Run checks for stalls until the context is canceled or a stall is detected.
func (w *Watchdog) Run(ctx context.Context) error {
	w.Log(logger.Debug, "launched, waiting for audio/video frames")

	t := time.NewTicker(w.CheckPeriod)
	defer t.Stop()

	for {
		select {
		case now := <-t.C:
			err := w.check(now)
			if err != nil {
				w.Log(logger.Error, "%v, terminating", err)
				return err
			}

		case <-ctx.Done():
			w.Log(logger.Debug, "terminated")
			return nil
		}
	}
}

func (w *Watchdog) check(now time.Time) error {
	last := w.last.Load()
	if last == 0 {
		w.Log(logger.Debug, "initialized, but no frames received")
		return nil
	}

	idle := now.Sub(time.Unix(0, last))

	switch {
	case idle > w.IdleMaximum:
		return ErrStall

	case idle > w.IdleDetection:
		w.Log(logger.Warn, "audio/video stall detected, waiting for %d second(s) to terminate",
			int((w.IdleMaximum-idle)/time.Second))
	}

	return nil
}
