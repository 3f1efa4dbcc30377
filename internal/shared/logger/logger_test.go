package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"refcache/internal/shared/config"

	"github.com/stretchr/testify/assert"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LoggingConfig{Level: "warn", JSONFormat: true})

	logger.Info("Dropped")
	logger.Warn("Kept", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "Dropped")
	assert.Contains(t, out, `"msg":"Kept"`)
	assert.Contains(t, out, `"component":"test"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelDebug, parseLogLevel("verbose"))
}
