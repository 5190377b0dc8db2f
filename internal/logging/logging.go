// Package logging builds the zerolog logger the CLI uses and adapts it to the
// engine's Logger interface.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger writing to w. format is "console" or "json".
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var logger zerolog.Logger
	switch strings.ToLower(format) {
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
	case "json":
		logger = zerolog.New(w).With().Timestamp().Logger()
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}
	return logger.Level(lvl), nil
}

// EngineLogger adapts a zerolog logger to the printf-style engine Logger
type EngineLogger struct {
	L zerolog.Logger
}

// NewEngineLogger wraps l, tagging every event with the component name
func NewEngineLogger(l zerolog.Logger, component string) *EngineLogger {
	return &EngineLogger{L: l.With().Str("component", component).Logger()}
}

func (e *EngineLogger) Debugf(format string, args ...any) { e.L.Debug().Msgf(format, args...) }
func (e *EngineLogger) Infof(format string, args ...any)  { e.L.Info().Msgf(format, args...) }
func (e *EngineLogger) Warnf(format string, args ...any)  { e.L.Warn().Msgf(format, args...) }
func (e *EngineLogger) Errorf(format string, args ...any) { e.L.Error().Msgf(format, args...) }
