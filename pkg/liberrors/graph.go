package liberrors

import (
	"fmt"
)

// ErrGraphClosed is returned when the processing graph is closed.
type ErrGraphClosed struct{}

// Error implements the error interface.
func (e ErrGraphClosed) Error() string {
	return "processing graph is closed"
}

// ErrProcessorNotFound is returned when a processor id does not exist or has been deleted.
type ErrProcessorNotFound struct {
	ID int
}

// Error implements the error interface.
func (e ErrProcessorNotFound) Error() string {
	return fmt.Sprintf("processor %d not found", e.ID)
}

// ErrProcessorUnknown is returned when no factory is registered with the given name.
type ErrProcessorUnknown struct {
	Name string
}

// Error implements the error interface.
func (e ErrProcessorUnknown) Error() string {
	return fmt.Sprintf("unknown processor '%s'", e.Name)
}

// ErrProcessorAlreadyRegistered is returned when a factory name is registered twice.
type ErrProcessorAlreadyRegistered struct {
	Name string
}

// Error implements the error interface.
func (e ErrProcessorAlreadyRegistered) Error() string {
	return fmt.Sprintf("processor '%s' is already registered", e.Name)
}

// ErrProcessorSettingMissing is returned when a required processor setting is missing.
type ErrProcessorSettingMissing struct {
	Key string
}

// Error implements the error interface.
func (e ErrProcessorSettingMissing) Error() string {
	return fmt.Sprintf("setting '%s' is missing", e.Key)
}

// ErrProcessorSettingInvalid is returned when a processor setting cannot be parsed.
type ErrProcessorSettingInvalid struct {
	Key   string
	Value string
}

// Error implements the error interface.
func (e ErrProcessorSettingInvalid) Error() string {
	return fmt.Sprintf("invalid value '%s' for setting '%s'", e.Value, e.Key)
}

// ErrProcessorNoOutput is returned when frames are received from a processor that produces none.
type ErrProcessorNoOutput struct{}

// Error implements the error interface.
func (e ErrProcessorNoOutput) Error() string {
	return "processor has no output"
}

// ErrProcessorNoInput is returned when frames are sent to a processor that accepts none.
type ErrProcessorNoInput struct{}

// Error implements the error interface.
func (e ErrProcessorNoInput) Error() string {
	return "processor does not accept frames"
}

// ErrMetadataNotReady is returned when processor metadata is not available yet.
type ErrMetadataNotReady struct{}

// Error implements the error interface.
func (e ErrMetadataNotReady) Error() string {
	return "metadata not available yet"
}
