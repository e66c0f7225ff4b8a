package liberrors

import (
	"fmt"
)

// ErrClientTerminated is returned when the client is closed.
type ErrClientTerminated struct{}

// Error implements the error interface.
func (e ErrClientTerminated) Error() string {
	return "terminated"
}

// ErrClientAlreadyStarted is returned when Start() is called twice.
type ErrClientAlreadyStarted struct{}

// Error implements the error interface.
func (e ErrClientAlreadyStarted) Error() string {
	return "client already started"
}

// ErrClientNotStarted is returned when a method requiring a started client is called before Start().
type ErrClientNotStarted struct{}

// Error implements the error interface.
func (e ErrClientNotStarted) Error() string {
	return "client not started"
}

// ErrClientURLMissing is returned when the source URL is empty.
type ErrClientURLMissing struct{}

// Error implements the error interface.
func (e ErrClientURLMissing) Error() string {
	return "source URL is missing"
}

// ErrClientInvalidChannelCount is returned when the maximum number of video channels is out of range.
type ErrClientInvalidChannelCount struct {
	Count int
}

// Error implements the error interface.
func (e ErrClientInvalidChannelCount) Error() string {
	return fmt.Sprintf("invalid video channel count: %d", e.Count)
}

// ErrClientInvalidMetadata is returned when demuxer metadata cannot be decoded.
type ErrClientInvalidMetadata struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientInvalidMetadata) Error() string {
	return fmt.Sprintf("invalid demuxer metadata: %v", e.Err)
}

// ErrClientChannelsExhausted is returned when there are more video streams than video channels.
type ErrClientChannelsExhausted struct {
	Max int
}

// Error implements the error interface.
func (e ErrClientChannelsExhausted) Error() string {
	return fmt.Sprintf("all %d video channels are in use", e.Max)
}

// ErrClientUnsupportedCodec is returned when a stream announces a codec without decoder.
type ErrClientUnsupportedCodec struct {
	MIMEType string
}

// Error implements the error interface.
func (e ErrClientUnsupportedCodec) Error() string {
	return fmt.Sprintf("unsupported codec '%s'", e.MIMEType)
}

// ErrClientDuplicateStream is returned when an elementary stream id is announced twice.
type ErrClientDuplicateStream struct {
	ID int
}

// Error implements the error interface.
func (e ErrClientDuplicateStream) Error() string {
	return fmt.Sprintf("elementary stream %d announced twice", e.ID)
}
