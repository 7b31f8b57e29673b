package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mdobak/go-xerrors"
)

var log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// Info logs an informational message.
func Info(msg string) {
	log.Info(msg)
}

// Infof logs a formatted informational message.
func Infof(format string, args ...any) {
	log.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func Warn(msg string) {
	log.Warn(msg)
}

// Warnf logs a formatted warning message.
func Warnf(format string, args ...any) {
	log.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error with its stack trace attached.
func Error(err error) {
	log.Error(err.Error(), slog.String("trace", fmt.Sprintf("%+v", xerrors.New(err))))
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) {
	Error(fmt.Errorf(format, args...))
}
