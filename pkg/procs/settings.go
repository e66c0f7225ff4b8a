package procs

import (
	"net/url"
	"strconv"
	"time"

	"github.com/bluenviron/gaclient/pkg/liberrors"
)

// Settings are processor settings, encoded as a URL query.
type Settings struct {
	url.Values
}

// Required returns a setting that must be present.
func (s Settings) Required(key string) (string, error) {
	v := s.Get(key)
	if v == "" {
		return "", liberrors.ErrProcessorSettingMissing{Key: key}
	}
	return v, nil
}

// String returns a setting or a default value.
func (s Settings) String(key string, def string) string {
	if v := s.Get(key); v != "" {
		return v
	}
	return def
}

// Int returns an integer setting or a default value.
func (s Settings) Int(key string, def int) (int, error) {
	v := s.Get(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, liberrors.ErrProcessorSettingInvalid{Key: key, Value: v}
	}
	return n, nil
}

// Duration returns a duration setting or a default value.
func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v := s.Get(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, liberrors.ErrProcessorSettingInvalid{Key: key, Value: v}
	}
	return d, nil
}
