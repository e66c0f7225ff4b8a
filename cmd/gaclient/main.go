// main executable.
package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bluenviron/gaclient"
	"github.com/bluenviron/gaclient/internal/audiosink"
	"github.com/bluenviron/gaclient/internal/conf"
	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/internal/presenter"
	"github.com/bluenviron/gaclient/internal/watchdog"
	"github.com/bluenviron/gaclient/pkg/liberrors"
)

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "gaclient <config> <url>",
		Short:        "game streaming client",
		Long:         `Reads a game stream from a RTSP server, decodes it and presents it.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], args[1])
		},
	}
}

func audioSinkFromConf(cnf *conf.Conf, parent logger.Writer) gaclient.AudioSink {
	if cnf.AudioSink == "file" {
		return &audiosink.File{
			Path:   cnf.AudioFile,
			Parent: parent,
		}
	}
	return &audiosink.None{}
}

func demuxerSettings(cnf *conf.Conf) url.Values {
	v := url.Values{}
	v.Set("protocol", cnf.Protocol)
	v.Set("read_timeout", time.Duration(cnf.ReadTimeout).String())
	v.Set("write_timeout", time.Duration(cnf.WriteTimeout).String())
	v.Set("buffer_size", strconv.Itoa(cnf.DemuxerBufferSize))
	return v
}

func run(ctx context.Context, confPath string, rawURL string) error {
	cnf, err := conf.Load(confPath)
	if err != nil {
		return err
	}

	dests, err := cnf.LoggerDestinations()
	if err != nil {
		return err
	}

	lh, err := logger.New(cnf.LoggerLevel(), dests, cnf.LogFile)
	if err != nil {
		return errors.Wrap(err, "unable to open log")
	}
	defer lh.Close()

	wd := &watchdog.Watchdog{
		IdleDetection: time.Duration(cnf.IdleDetectionThreshold),
		IdleMaximum:   time.Duration(cnf.IdleMaximumThreshold),
		Parent:        lh,
	}
	wd.Initialize()

	pr := &presenter.Presenter{
		DumpDirectory: cnf.DumpDirectory,
		OnFrame:       wd.Feed,
		Parent:        lh,
	}

	c := &gaclient.Client{
		URL:                rawURL,
		MaxVideoChannels:   cnf.MaxVideoChannels,
		RendererBufferSize: cnf.RendererBufferSize,
		DecoderBufferSize:  cnf.DecoderBufferSize,
		DemuxerSettings:    demuxerSettings(cnf),
		AudioSink:          audioSinkFromConf(cnf, lh),
		AudioSampleRate:    cnf.AudioSampleRate,
		AudioChannels:      cnf.AudioChannels,
		AudioFormat:        gaclient.SampleFormatS16,
		OnFrameReady:       pr.FrameReady,
		OnActivity:         wd.Feed,
		Parent:             lh,
	}
	pr.Source = c

	err = pr.Initialize()
	if err != nil {
		return err
	}

	err = c.Start()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()

		err := c.Wait()
		var terminated liberrors.ErrClientTerminated
		if errors.As(err, &terminated) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return pr.Run(gctx)
	})

	if cnf.Watchdog {
		g.Go(func() error {
			defer cancel()
			return wd.Run(gctx)
		})
	}

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			lh.Log(logger.Info, "received %v, shutting down", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	return g.Wait()
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		os.Exit(-1)
	}
}
