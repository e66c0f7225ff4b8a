// Package conf contains the configuration file.
package conf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bluenviron/gaclient/internal/logger"
)

const maxVideoChannels = 16

// Conf is the client configuration.
type Conf struct {
	// general
	LogLevel        string   `yaml:"logLevel"`
	LogDestinations []string `yaml:"logDestinations"`
	LogFile         string   `yaml:"logFile"`

	// RTSP
	Protocol     string   `yaml:"protocol"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`

	// pipeline
	MaxVideoChannels   int `yaml:"maxVideoChannels"`
	RendererBufferSize int `yaml:"rendererBufferSize"`
	DemuxerBufferSize  int `yaml:"demuxerBufferSize"`
	DecoderBufferSize  int `yaml:"decoderBufferSize"`

	// audio
	AudioSampleRate int    `yaml:"audioSampleRate"`
	AudioChannels   int    `yaml:"audioChannels"`
	AudioFormat     string `yaml:"audioFormat"`
	AudioSink       string `yaml:"audioSink"`
	AudioFile       string `yaml:"audioFile"`

	// presentation
	DumpDirectory string `yaml:"dumpDirectory"`

	// watchdog
	Watchdog               bool     `yaml:"watchdog"`
	IdleDetectionThreshold Duration `yaml:"idleDetectionThreshold"`
	IdleMaximumThreshold   Duration `yaml:"idleMaximumThreshold"`
}

func (c *Conf) setDefaults() {
	c.LogLevel = "info"
	c.LogDestinations = []string{"stdout"}
	c.LogFile = "gaclient.log"
	c.Protocol = "automatic"
	c.ReadTimeout = Duration(10 * time.Second)
	c.WriteTimeout = Duration(10 * time.Second)
	c.MaxVideoChannels = 8
	c.RendererBufferSize = 60
	c.DemuxerBufferSize = 1024
	c.DecoderBufferSize = 64
	c.AudioSampleRate = 44100
	c.AudioChannels = 2
	c.AudioFormat = "s16"
	c.AudioSink = "none"
	c.AudioFile = "audio.pcm"
	c.Watchdog = true
	c.IdleDetectionThreshold = Duration(600 * time.Millisecond)
	c.IdleMaximumThreshold = Duration(3600 * time.Millisecond)
}

// Default returns the default configuration.
func Default() *Conf {
	c := &Conf{}
	c.setDefaults()
	return c
}

// Load loads a configuration file.
func Load(fpath string) (*Conf, error) {
	byts, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	c, err := Parse(byts)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", fpath)
	}

	return c, nil
}

// Parse parses a configuration. Fields that are not set keep their default value.
func Parse(byts []byte) (*Conf, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(byts))
	dec.KnownFields(true)

	err := dec.Decode(c)
	if err != nil && err != io.EOF {
		return nil, err
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks the configuration.
func (c *Conf) Validate() error {
	_, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}

	_, err = c.LoggerDestinations()
	if err != nil {
		return err
	}

	switch c.Protocol {
	case "automatic", "udp", "multicast", "tcp":
	default:
		return fmt.Errorf("invalid protocol: '%s'", c.Protocol)
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be greater than zero")
	}

	if c.MaxVideoChannels <= 0 || c.MaxVideoChannels > maxVideoChannels {
		return fmt.Errorf("maxVideoChannels must be between 1 and %d", maxVideoChannels)
	}

	if c.RendererBufferSize <= 0 || c.DemuxerBufferSize <= 0 || c.DecoderBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be greater than zero")
	}

	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("invalid audioSampleRate: %d", c.AudioSampleRate)
	}

	if c.AudioChannels != 1 && c.AudioChannels != 2 {
		return fmt.Errorf("invalid audioChannels: %d", c.AudioChannels)
	}

	if c.AudioFormat != "s16" {
		return fmt.Errorf("unsupported audioFormat: '%s'", c.AudioFormat)
	}

	switch c.AudioSink {
	case "none":
	case "file":
		if c.AudioFile == "" {
			return fmt.Errorf("audioFile is required when audioSink is 'file'")
		}
	default:
		return fmt.Errorf("invalid audioSink: '%s'", c.AudioSink)
	}

	if c.Watchdog {
		if c.IdleDetectionThreshold <= 0 || c.IdleMaximumThreshold <= c.IdleDetectionThreshold {
			return fmt.Errorf("idleMaximumThreshold must be greater than idleDetectionThreshold")
		}
	}

	return nil
}

// LoggerLevel returns the log level.
func (c *Conf) LoggerLevel() logger.Level {
	l, _ := logger.ParseLevel(c.LogLevel)
	return l
}

// LoggerDestinations returns the log destinations.
func (c *Conf) LoggerDestinations() ([]logger.Destination, error) {
	ret := make([]logger.Destination, 0, len(c.LogDestinations))

	for _, d := range c.LogDestinations {
		switch d {
		case "stdout":
			ret = append(ret, logger.DestinationStdout)

		case "file":
			ret = append(ret, logger.DestinationFile)

		default:
			return nil, fmt.Errorf("invalid log destination: '%s'", d)
		}
	}

	return ret, nil
}
