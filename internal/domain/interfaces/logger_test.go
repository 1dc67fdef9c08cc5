package interfaces

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger := NewSlogLogger(base).With(F("platform", "macos"))
	logger.Info("phase finished", F("phase", "sign"), F("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, "phase finished")
	assert.Contains(t, out, "platform=macos")
	assert.Contains(t, out, "phase=sign")
	assert.Contains(t, out, "attempt=2")
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger := NewSlogLogger(base)
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNoOpLogger(_ *testing.T) {
	var logger Logger = &NoOpLogger{}
	logger.Debug("x")
	logger.Info("x", F("k", "v"))
	logger.Warn("x")
	logger.Error("x")
}
