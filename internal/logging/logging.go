// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eddiefleurent/zone_strangler/internal/config"
)

// New creates a logrus logger from the environment and logging sections.
// Output always goes to stdout and is teed to a rotating file when one is set.
func New(env config.EnvironmentConfig, cfg config.LoggingConfig) *logrus.Logger {
	return newLogger(env, cfg, os.Stdout)
}

func newLogger(env config.EnvironmentConfig, cfg config.LoggingConfig, console io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLevel(env.LogLevel))

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	writers := []io.Writer{console}
	if cfg.File != "" {
		// Skip the file sink rather than fail startup when the directory can't be made
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    orDefault(cfg.MaxSizeMB, 20),
				MaxBackups: orDefault(cfg.MaxBackups, 5),
				MaxAge:     orDefault(cfg.MaxAgeDays, 14),
				Compress:   true,
			})
		} else {
			logger.WithError(err).Warn("log directory unavailable, logging to console only")
		}
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger
}

// ParseLevel maps a config level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// CronLogger adapts logrus to the cron.Logger interface.
type CronLogger struct {
	Entry *logrus.Entry
}

// Info logs routine scheduler messages at debug level.
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

// Error logs scheduler failures.
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
