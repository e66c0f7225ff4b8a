package gaclient

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/liberrors"
)

type demuxerStream struct {
	ID        int    `json:"elementary_stream_id"`
	MIMEType  string `json:"sdp_mimetype"`
	ClockRate int    `json:"clock_rate"`
	Channels  int    `json:"channels"`
}

type demuxerMetadata struct {
	Streams []demuxerStream `json:"elementary_streams"`
}

func parseDemuxerMetadata(byts []byte) ([]demuxerStream, error) {
	var m demuxerMetadata
	err := json.Unmarshal(byts, &m)
	if err != nil {
		return nil, liberrors.ErrClientInvalidMetadata{Err: err}
	}

	if m.Streams == nil {
		return nil, liberrors.ErrClientInvalidMetadata{Err: errors.New("elementary_streams is missing")}
	}

	return m.Streams, nil
}

// discover reads the demuxer metadata and launches a decoder for each supported stream.
// Streams that cannot be decoded are skipped.
func (c *Client) discover() error {
	id := int(c.demuxerID.Load())
	if id < 0 {
		return liberrors.ErrClientTerminated{}
	}

	byts, err := c.graph.Metadata(id)
	if err != nil {
		return err
	}

	streams, err := parseDemuxerMetadata(byts)
	if err != nil {
		return err
	}

	c.Log(logger.Debug, "demuxer announced %d elementary streams", len(streams))

	for _, es := range streams {
		err := c.launchDecoder(es)
		if err != nil {
			c.Log(logger.Warn, "skipping elementary stream %d (%s): %v", es.ID, es.MIMEType, err)
		}
	}

	return nil
}

func (c *Client) decoderSettings(es demuxerStream, kind CodecKind) string {
	v := url.Values{}
	v.Set("buffer_size", strconv.Itoa(c.DecoderBufferSize))

	if kind.IsAudio() && kind != CodecKindMP3 {
		if es.ClockRate > 0 {
			v.Set("sample_rate", strconv.Itoa(es.ClockRate))
		}

		channels := es.Channels
		if channels == 0 {
			channels = c.AudioChannels
		}
		v.Set("channels", strconv.Itoa(channels))
	}

	return v.Encode()
}

// launchDecoder creates the decoder of an elementary stream and starts its consumer.
func (c *Client) launchDecoder(es demuxerStream) error {
	typ, sub := parseMIME(es.MIMEType)

	kind := codecKindFromSubtype(sub)
	if kind == CodecKindUnsupported {
		return liberrors.ErrClientUnsupportedCodec{MIMEType: es.MIMEType}
	}

	switch {
	case typ == "video" && kind.IsVideo():
	case typ == "audio" && kind.IsAudio():
	default:
		return liberrors.ErrClientUnsupportedCodec{MIMEType: es.MIMEType}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closing {
		return liberrors.ErrClientTerminated{}
	}

	if c.registry.has(es.ID) {
		return liberrors.ErrClientDuplicateStream{ID: es.ID}
	}

	channel := -1
	if kind.IsVideo() {
		channel = c.registry.nextChannel()
		if channel >= len(c.queues) {
			return liberrors.ErrClientChannelsExhausted{Max: len(c.queues)}
		}
	}

	procID, err := c.graph.CreateProcessor(kind.DecoderName(), c.decoderSettings(es, kind))
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", kind.DecoderName())
	}

	s := newDecoderSlot(es.ID, es.MIMEType, kind, channel)
	s.processorID.Store(int64(procID))

	if kind.IsVideo() {
		c.registry.addVideo(s)
		c.Log(logger.Info, "elementary stream %d (%s) -> channel %d", es.ID, es.MIMEType, channel)
		go c.runVideoConsumer(s)
	} else {
		if prev := c.registry.setAudio(s); prev != nil {
			c.Log(logger.Warn, "elementary stream %d replaces audio stream %d", es.ID, prev.esID)
			if prevID := prev.release(); prevID >= 0 {
				c.deleteProcessor(prevID)
			}
		}
		c.Log(logger.Info, "elementary stream %d (%s) -> audio", es.ID, es.MIMEType)
		go c.runAudioConsumer(s)
	}

	return nil
}

// joinDecoders waits for every consumer to exit.
func (c *Client) joinDecoders() {
	c.mutex.Lock()
	slots := c.registry.all()
	c.mutex.Unlock()

	for _, s := range slots {
		err := <-s.status
		if err != nil {
			c.Log(logger.Warn, "consumer of elementary stream %d exited: %v", s.esID, err)
		}
	}
}
