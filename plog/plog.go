// Package plog is pstore's ambient leveled logger: a small field-based
// interface threaded through Database and Transaction for the
// diagnostic points spec.md calls out by name — footer CRC mismatch during
// recovery (§7), commit failure leaving the database read-only (§7), and
// vacuum-mode transitions (§4.D).
//
// No third-party structured-logging library appears anywhere in the
// example pack's dependency surface, so this wraps the standard library's
// log/slog rather than inventing a bespoke field encoder or reaching for an
// unrelated dependency just to have one; see DESIGN.md for the full
// justification.
package plog

import (
	"log/slog"
	"os"
)

// Logger is the interface Database and Transaction depend on.
// Production code gets one from New; tests can substitute Discard or a
// recording fake.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	// With returns a Logger that prepends fields to every subsequent call,
	// the way the teacher's components tag diagnostics with static
	// context (segment, generation, transaction id) once per component.
	With(fields ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New returns a Logger that writes leveled, field-tagged text to w.
func New(w *os.File) Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(w, nil))}
}

// Discard is a Logger that drops everything, the default for tests and for
// callers that never configured a logger.
var Discard Logger = &slogLogger{l: slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}
