package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, ca := range []struct {
		in  string
		out Level
	}{
		{"debug", Debug},
		{"info", Info},
		{"", Info},
		{"WARN", Warn},
		{"error", Error},
	} {
		t.Run(ca.in, func(t *testing.T) {
			l, err := ParseLevel(ca.in)
			require.NoError(t, err)
			require.Equal(t, ca.out, l)
		})
	}

	_, err := ParseLevel("verbose")
	require.EqualError(t, err, "invalid log level: 'verbose'")
}

func TestLoggerLevelFilter(t *testing.T) {
	lh, err := New(Warn, []Destination{DestinationStdout}, "")
	require.NoError(t, err)
	defer lh.Close()

	var buf bytes.Buffer
	lh.out = &buf

	lh.Log(Info, "hidden %d", 1)
	lh.Log(Error, "shown %d", 2)

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "ERR shown 2\n")
}

func TestLoggerFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gaclient.log")

	lh, err := New(Debug, []Destination{DestinationFile}, fpath)
	require.NoError(t, err)

	lh.Log(Debug, "[client %s] hello", "abc")
	lh.Close()

	byts, err := os.ReadFile(fpath)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(byts), "DEB [client abc] hello\n"))
}
