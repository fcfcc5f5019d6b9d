// Package logging builds the zerolog logger shared by the CLI, the
// workflow engine and the MCP server.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deixis/asynccmd"
	"github.com/deixis/asynccmd/internal/config"
)

// Formats accepted in the log configuration.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New creates a logger writing to w. Unknown levels fall back to info and
// unknown formats to console.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(cfg.Format) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "asynccmd").
		Str("version", asynccmd.Version).
		Logger()
}

// FromConfig creates a logger from the log section of a loaded config.
func FromConfig(cfg *config.Config, w io.Writer) zerolog.Logger {
	return New(config.LogConfig{Level: cfg.LogLevel(), Format: cfg.LogFormat()}, w)
}
