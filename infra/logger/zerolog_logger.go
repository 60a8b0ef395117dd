package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// FormatEnv selects the output format: "console" for human readable lines,
// anything else for JSON.
const FormatEnv = "BWP_LOG_FORMAT"

// NewZerologLogger creates a ZerologLogger writing to stderr, keeping stdout
// free for command output. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	return newZerologLogger(os.Stderr, component)
}

func newZerologLogger(w io.Writer, component string) *ZerologLogger {
	if strings.EqualFold(os.Getenv(FormatEnv), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
