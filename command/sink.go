package command

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Diagnostic events emitted by a verbose Command. Completion is reported
// with the upper-cased final status (FINISHED or ERROR).
const (
	EventStart  = "START"
	EventStdout = "STDOUT"
	EventStderr = "STDERR"
)

// Sink receives the diagnostics of a verbose Command. name is the
// upper-cased command name. text is empty for lifecycle events.
//
// Emit may be called concurrently from the stdout and stderr readers.
// Diagnostics are for humans; their ordering across streams is not
// guaranteed.
type Sink interface {
	Emit(name, event, text string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(name, event, text string)

// Emit calls f.
func (f SinkFunc) Emit(name, event, text string) {
	f(name, event, text)
}

type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

// WriterSink returns a Sink that writes one "[NAME][EVENT] text" line per
// event to w.
func WriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

func (s *writerSink) Emit(name, event, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text = strings.TrimRight(text, "\n")
	if text == "" {
		fmt.Fprintf(s.w, "[%s][%s]\n", name, event)
		return
	}
	fmt.Fprintf(s.w, "[%s][%s] %s\n", name, event, text)
}

type loggerSink struct {
	logger zerolog.Logger
}

// LoggerSink returns a Sink that writes events to a zerolog logger.
// Stream output is logged at debug level, lifecycle events at info, and
// an ERROR completion at warn.
func LoggerSink(logger zerolog.Logger) Sink {
	return loggerSink{logger: logger}
}

func (s loggerSink) Emit(name, event, text string) {
	var ev *zerolog.Event
	switch event {
	case EventStdout, EventStderr:
		ev = s.logger.Debug().Str("output", text)
	case "ERROR":
		ev = s.logger.Warn()
	default:
		ev = s.logger.Info()
	}
	ev.Str("command", name).Str("event", event).Msg("command event")
}
