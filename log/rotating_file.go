package log

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingFileConfig configures a size- and age-based rotating log file.
type RotatingFileConfig struct {
	Path       string // file to write logs to
	MaxSizeMB  int    // rotate after the file reaches this size
	MaxBackups int    // number of rotated files to retain
	MaxAgeDays int    // days to retain rotated files
	Compress   bool   // gzip rotated files
}

// DefaultRotatingFileConfig returns sane defaults for a node log file.
func DefaultRotatingFileConfig(path string) RotatingFileConfig {
	return RotatingFileConfig{
		Path:       path,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// NewRotatingFile creates a Logger that writes JSON records to a
// lumberjack-managed rotating file at the given level.
func NewRotatingFile(cfg RotatingFileConfig, level slog.Level) *Logger {
	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{inner: slog.New(h)}
}
