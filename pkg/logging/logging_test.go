package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewCustomLogger(slog.LevelWarn)
	l.ConsoleWriter = &buf
	l.OutputType = PlainOutput

	l.Info("info message")
	assert.Empty(t, buf.String(), "info should be suppressed above warn level")

	l.Warn("warning: %s", "disk low")
	assert.Contains(t, buf.String(), "warning: disk low")
}

func TestCustomLoggerQuietSuppressesAllButError(t *testing.T) {
	var buf bytes.Buffer
	l := NewCustomLogger(slog.LevelDebug)
	l.ConsoleWriter = &buf
	l.Quiet = true

	l.Info("hello")
	l.Warn("hello")
	l.Debug("hello")
	assert.Empty(t, buf.String())

	l.Error("boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestWarnFilteredContent(t *testing.T) {
	var buf bytes.Buffer
	l := NewCustomLogger(slog.LevelInfo)
	l.ConsoleWriter = &buf

	l.WarnFilteredContent("var/cache/foo", "toplevel var excluded")
	require.Contains(t, buf.String(), "var/cache/foo")
	assert.Contains(t, buf.String(), "toplevel var excluded")
}

func TestWarnUnknownCompatibilityLabel(t *testing.T) {
	var buf bytes.Buffer
	l := NewCustomLogger(slog.LevelInfo)
	l.ConsoleWriter = &buf

	l.WarnUnknownCompatibilityLabel("containers.bootc.compatibility-format", "v99")
	assert.Contains(t, buf.String(), "containers.bootc.compatibility-format")
	assert.Contains(t, buf.String(), "v99")
}

func TestDetermineLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, DetermineLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, DetermineLogLevel("warn"))
	assert.Equal(t, slog.LevelError, DetermineLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, DetermineLogLevel("unknown"))
}

func TestWithLoggerAndFromContext(t *testing.T) {
	var buf bytes.Buffer
	custom := NewCustomLogger(slog.LevelDebug)
	custom.ConsoleWriter = &buf

	ctx := WithLogger(t.Context(), custom)
	WarnContext(ctx, "from context: %d", 42)
	assert.Contains(t, buf.String(), "from context: 42")
}
