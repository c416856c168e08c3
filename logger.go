package courier

import (
	"context"
	"log/slog"
	"os"
)

// Logger receives structured log lines as a message plus key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

// NewSimpleLogger returns a text logger on stderr at debug level.
func NewSimpleLogger() *SlogLogger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &SlogLogger{l: slog.New(h).With("component", "courier")}
}

func (s *SlogLogger) Debug(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (s *SlogLogger) Info(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (s *SlogLogger) Warn(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (s *SlogLogger) Error(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
