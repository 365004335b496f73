package logging

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

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp log file
	logPath := filepath.Join(t.TempDir(), "bookrag.log")
	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	// When: logging a structured message
	logger.Info("index built", slog.String("book_id", "effective_go"), slog.Int("chunks", 42))

	// Then: the file contains a parseable JSON line
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "index built", entry["msg"])
	assert.Equal(t, "effective_go", entry["book_id"])
	assert.Equal(t, float64(42), entry["chunks"])
}

func TestSetup_EmptyFilePathUsesStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, logger)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, LevelFromString(tt.input))
		})
	}
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "bookrag.log")

	// maxSize of 1MB; write two payloads that together exceed it
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	payload := strings.Repeat("x", 600*1024)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)

	// First payload should have rotated out to .1
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)
}

func TestFindLogFile_ExplicitMissing(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}
