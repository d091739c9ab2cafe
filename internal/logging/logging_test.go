package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat("tint"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatAuto, ParseFormat("yaml"))

	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Resolve(true, "auto", "").Level)
	assert.Equal(t, slog.LevelInfo, Resolve(false, "auto", "").Level)
	assert.Equal(t, slog.LevelError, Resolve(true, "json", "error").Level)
}

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, Options{Format: FormatAuto, Level: slog.LevelInfo}))
	log.Debug("hidden")
	log.Info("selection acquired", "channel", "clipboard")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "selection acquired", rec["msg"])
	assert.Equal(t, "clipboard", rec["channel"])
}

func TestNewHandlerText(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, Options{Format: FormatText, Level: slog.LevelDebug}))
	log.Debug("drop accepted", "action", "copy")
	assert.Contains(t, buf.String(), "drop accepted")
	assert.Contains(t, buf.String(), "copy")
}
