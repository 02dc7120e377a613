// Package logger wraps zerolog.Logger with the constructors used by the sync
// client, the dev backend and their tests.
package logger

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so Debug, Info, Warn and Error are available
// directly on *Logger.
type Logger struct {
	zerolog.Logger
}

// NewLogger builds a JSON logger on stdout tagged with role. Level is one of
// debug, info, warn or error; anything else means info.
func NewLogger(role, level string) *Logger {
	return newLogger(os.Stdout, role, level)
}

func newLogger(w io.Writer, role, level string) *Logger {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return runtime.FuncForPC(pc).Name()
	}
	zerolog.CallerFieldName = "func"

	l := zerolog.New(w).Level(ParseLevel(level)).With().
		Str("role", role).
		Timestamp().
		Caller().
		Logger()
	return &Logger{l}
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Component returns a child logger carrying a component field.
func (l *Logger) Component(component string) *Logger {
	return &Logger{l.Logger.With().Str("component", component).Logger()}
}
