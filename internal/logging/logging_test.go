package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	require.Equal(t, slog.LevelError, levelFromString("ERROR"))
	require.Equal(t, slog.LevelWarn, levelFromString(" warning "))
	require.Equal(t, slog.LevelDebug, levelFromString("debug"))
	require.Equal(t, slog.LevelInfo, levelFromString(""))
	require.Equal(t, slog.LevelInfo, levelFromString("verbose"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "json")

	l.Info("dropped")
	l.Warn("kept", "tracking_number", "A1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "kept", rec["msg"])
	require.Equal(t, "A1", rec["tracking_number"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "")
	l.Info("hello", "k", "v")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=v")
}
