package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aponysus/bamboo/apierr"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

func (l Log) validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
		return apierr.Config("log.level", "unknown level %q", l.Level)
	}
	switch l.Format {
	case "", FormatJSON, FormatConsole:
		return nil
	default:
		return apierr.Config("log.format", "must be %q or %q, got %q", FormatJSON, FormatConsole, l.Format)
	}
}

// NewLogger builds the logger described by l, writing to w (stderr when nil).
func NewLogger(l Log, w io.Writer) (zerolog.Logger, error) {
	if err := l.validate(); err != nil {
		return zerolog.Nop(), err
	}
	if w == nil {
		w = os.Stderr
	}
	level, _ := zerolog.ParseLevel(strings.ToLower(l.Level))
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if l.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
