// Package logger contains a logger implementation.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Writer is an object that provides a log method.
type Writer interface {
	Log(Level, string, ...any)
}

// Destination is a log destination.
type Destination int

// destinations.
const (
	// DestinationStdout writes logs to the standard output.
	DestinationStdout Destination = iota

	// DestinationFile writes logs to a file.
	DestinationFile
)

// Logger is a log handler.
type Logger struct {
	level        Level
	destinations map[Destination]struct{}

	mutex sync.Mutex
	file  *os.File
	out   io.Writer
	buf   bytes.Buffer
}

// New allocates a log handler.
func New(level Level, destinations []Destination, filePath string) (*Logger, error) {
	lh := &Logger{
		level:        level,
		destinations: make(map[Destination]struct{}),
		out:          os.Stdout,
	}

	for _, d := range destinations {
		lh.destinations[d] = struct{}{}
	}

	if _, ok := lh.destinations[DestinationFile]; ok {
		var err error
		lh.file, err = os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
	}

	return lh, nil
}

// Close closes a log handler.
func (lh *Logger) Close() {
	if lh.file != nil {
		lh.file.Close()
	}
}

// Log writes a log entry.
func (lh *Logger) Log(level Level, format string, args ...any) {
	if level < lh.level {
		return
	}

	lh.mutex.Lock()
	defer lh.mutex.Unlock()

	lh.buf.Reset()
	lh.buf.WriteString(time.Now().Format("2006/01/02 15:04:05 "))
	lh.buf.WriteString(level.String())
	lh.buf.WriteByte(' ')
	fmt.Fprintf(&lh.buf, format, args...)
	lh.buf.WriteByte('\n')

	if _, ok := lh.destinations[DestinationStdout]; ok {
		lh.out.Write(lh.buf.Bytes()) //nolint:errcheck
	}

	if lh.file != nil {
		lh.file.Write(lh.buf.Bytes()) //nolint:errcheck
	}
}

type discard struct{}

func (discard) Log(Level, string, ...any) {}

// Discard is a Writer that drops every entry.
var Discard Writer = discard{}
