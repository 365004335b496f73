// Package logging sets up structured JSON logging with size-based
// file rotation.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// Config controls where logs go and how verbose they are.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	Level string
	// FilePath is the log file. Empty logs to stderr only.
	FilePath string
	// MaxSizeMB caps the log file size before rotation. Zero means 10.
	MaxSizeMB int
	// MaxFiles caps how many rotated files are kept. Zero means 5.
	MaxFiles int
	// WriteToStderr mirrors file logs to stderr as well.
	WriteToStderr bool
}

// Setup builds a JSON slog.Logger per cfg. The returned cleanup
// flushes and closes the log file and must be called on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: LevelFromString(cfg.Level)}

	if cfg.FilePath == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	writer, err := NewRotatingWriter(cfg.FilePath, maxSize, maxFiles)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = writer
	if cfg.WriteToStderr {
		sink = io.MultiWriter(writer, os.Stderr)
	}

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(slog.NewJSONHandler(sink, opts)), cleanup, nil
}

// LevelFromString maps a level name to slog.Level, defaulting to info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
