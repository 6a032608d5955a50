package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gitstate/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("refresh failed", "category", "status")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "refresh failed", rec["msg"])
	assert.Equal(t, "status", rec["category"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	logger.Debug("settle cycle", "cycle", 3)
	assert.Contains(t, buf.String(), "msg=\"settle cycle\" cycle=3")
}

func TestNew_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "gitstate.log")
	logger, closeFn, err := New(config.LoggingConfig{Level: "info", Format: "text", File: p}, os.Stderr)
	require.NoError(t, err)
	logger.Info("written")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")
}

func TestNew_BadFormat(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "info", Format: "xml"}, os.Stderr)
	assert.Error(t, err)
}
