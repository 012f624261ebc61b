package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: logFile,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Debug("debug message")
	logger.Info("info message", slog.String("component", "test"))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Debug is below the configured level and must be filtered out.
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "info message", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.Contains(t, entry, "time")
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := New(&Config{
		Level:  "debug",
		Format: "console",
		Output: "stdout",
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewInvalidFilePath(t *testing.T) {
	_, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: "/nonexistent-dir/sub/app.log",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestWithAddsAttributes(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	base, err := New(&Config{Level: "info", Format: "json", Output: logFile})
	require.NoError(t, err)

	scoped := base.With("worker", "search")
	scoped.Info("hello")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "search", entry["worker"])
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
}
