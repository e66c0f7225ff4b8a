package conf

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a duration expressed as a string, for instance "600ms" or "10s".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var in string
	err := value.Decode(&in)
	if err != nil {
		return err
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return err
	}

	*d = Duration(du)
	return nil
}
