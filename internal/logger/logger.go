// Package logger builds the service-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to stdout, or a human-readable console
// stream when appEnv is "development".
func New(appEnv string) zerolog.Logger {
	return NewWithWriter(appEnv, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(appEnv string, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	l := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "gbp-ai-api").
		Logger()

	if appEnv == "development" {
		l = l.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}
	return l
}
