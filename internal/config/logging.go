package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// NewLogger builds the JSON logger used by every binary. When LOG_DIR is set,
// output is also written to a timestamped file; the returned closer closes it.
func NewLogger(cfg *Config, name string) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var (
		out    io.Writer = os.Stdout
		closer           = func() error { return nil }
	)
	if cfg.LogDir != "" {
		f, err := SetupLogFile(cfg.LogDir, name, cfg.LogMaxFiles)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f.Close
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})).
		With("service", name, "env", cfg.Environment)
	return logger, closer, nil
}

// SetupLogFile creates a new timestamped log file and cleans up old files.
// Returns the file handle (caller must close) or error.
func SetupLogFile(dir, name string, maxFiles int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.log", name,
		time.Now().Format("2006-01-02T15-04-05")))

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	if err := cleanupOldLogs(dir, name, maxFiles); err != nil {
		// Logging still works
		fmt.Fprintf(os.Stderr, "warning: failed to cleanup old logs: %v\n", err)
	}

	return f, nil
}

// cleanupOldLogs removes oldest log files when count exceeds maxFiles.
func cleanupOldLogs(dir, name string, maxFiles int) error {
	files, err := filepath.Glob(filepath.Join(dir, name+"-*.log"))
	if err != nil {
		return err
	}
	if maxFiles <= 0 || len(files) <= maxFiles {
		return nil
	}

	// Timestamp format sorts chronologically
	sort.Strings(files)

	for _, f := range files[:len(files)-maxFiles] {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}
