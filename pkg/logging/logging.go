package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 100
	maxLogBackups = 5
	maxLogAgeDays = 30
)

// FileLogger returns a logger writing to stderr and, when path is set, to a
// size-rotated log file. The returned closer is nil when no file is used.
func FileLogger(level logrus.Level, path string) (io.Closer, *logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if path == "" {
		logger.SetOutput(os.Stderr)
		return nil, logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return rotating, logger, nil
}

// Discard returns a logger that drops every entry. Used by tests and by
// callers that do not care about pipeline diagnostics.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
