// Package logger builds the slog loggers used by rallocctl. Library packages
// never log globally; they take a *slog.Logger from their options.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	logPrefix     = "rallocctl-"
	logSuffix     = ".log"
	retentionDays = 30
)

// Options configures a logger.
type Options struct {
	// Writer receives text output. Ignored when LogDir is set.
	Writer io.Writer
	// LogDir enables JSON output to a daily file in this directory. Files
	// older than the retention window are removed when the logger is built.
	LogDir string
	// Level is the minimum level. Zero means Info.
	Level slog.Level
	// Debug lowers Level to Debug.
	Debug bool
}

// New builds a logger from opts. With neither Writer nor LogDir set all
// output is discarded. The returned Closer releases the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := opts.Level
	if opts.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	switch {
	case opts.LogDir != "":
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, nil, err
		}
		cleanOldLogs(opts.LogDir, time.Now())

		filename := filepath.Join(opts.LogDir, fileName(time.Now()))
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return slog.New(slog.NewJSONHandler(f, hopts)), f, nil
	case opts.Writer != nil:
		return slog.New(slog.NewTextHandler(opts.Writer, hopts)), nopCloser{}, nil
	default:
		return Discard(), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fileName(t time.Time) string {
	return logPrefix + t.Format("2006-01-02") + logSuffix
}

// cleanOldLogs removes log files older than retentionDays.
func cleanOldLogs(logDir string, now time.Time) {
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}

		// rallocctl-2024-01-05.log
		dateStr := strings.TrimPrefix(strings.TrimSuffix(name, logSuffix), logPrefix)
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(logDir, name))
		}
	}
}
