// Package logging builds the zerolog loggers shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the root logger.
type Options struct {
	Verbose bool
	JSON    bool
	Out     io.Writer
}

// New returns the root logger. Console output unless JSON is set.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
