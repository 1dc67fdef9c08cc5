// Package interfaces defines core domain contracts.
//
//nolint:revive // Package name 'interfaces' is intentional for domain layer
package interfaces

import "log/slog"

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs debug-level messages
	Debug(msg string, fields ...Field)

	// Info logs informational messages
	Info(msg string, fields ...Field)

	// Warn logs warning messages
	Warn(msg string, fields ...Field)

	// Error logs error messages
	Error(msg string, fields ...Field)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value any
}

// F creates a new Field (convenience function)
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// NoOpLogger is a logger that does nothing (useful for tests)
type NoOpLogger struct{}

// Debug does nothing (no-op implementation)
func (n *NoOpLogger) Debug(_ string, _ ...Field) {}

// Info does nothing (no-op implementation)
func (n *NoOpLogger) Info(_ string, _ ...Field) {}

// Warn does nothing (no-op implementation)
func (n *NoOpLogger) Warn(_ string, _ ...Field) {}

// Error does nothing (no-op implementation)
func (n *NoOpLogger) Error(_ string, _ ...Field) {}

// SlogLogger adapts a *slog.Logger to the Logger contract
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger; a nil logger falls back to slog.Default()
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// With returns a logger that adds fields to every record
func (s *SlogLogger) With(fields ...Field) *SlogLogger {
	return &SlogLogger{logger: s.logger.With(toAttrs(fields)...)}
}

// Debug logs debug-level messages
func (s *SlogLogger) Debug(msg string, fields ...Field) {
	s.logger.Debug(msg, toAttrs(fields)...)
}

// Info logs informational messages
func (s *SlogLogger) Info(msg string, fields ...Field) {
	s.logger.Info(msg, toAttrs(fields)...)
}

// Warn logs warning messages
func (s *SlogLogger) Warn(msg string, fields ...Field) {
	s.logger.Warn(msg, toAttrs(fields)...)
}

func (s *SlogLogger) Error(msg string, fields ...Field) {
	s.logger.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

// WithFields returns a logger that adds fields to every record
func WithFields(logger Logger, fields ...Field) Logger {
	if s, ok := logger.(*SlogLogger); ok {
		return s.With(fields...)
	}
	return &fieldLogger{base: logger, fields: fields}
}

type fieldLogger struct {
	base   Logger
	fields []Field
}

func (l *fieldLogger) merge(fields []Field) []Field {
	return append(append([]Field(nil), l.fields...), fields...)
}

func (l *fieldLogger) Debug(msg string, fields ...Field) { l.base.Debug(msg, l.merge(fields)...) }

func (l *fieldLogger) Info(msg string, fields ...Field) { l.base.Info(msg, l.merge(fields)...) }

func (l *fieldLogger) Warn(msg string, fields ...Field) { l.base.Warn(msg, l.merge(fields)...) }

func (l *fieldLogger) Error(msg string, fields ...Field) { l.base.Error(msg, l.merge(fields)...) }
