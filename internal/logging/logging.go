// Package logging configures the application wide slog loggers: structured
// JSON to stdout, human-readable text to stderr, and an optional rotated
// log file carrying the structured stream.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skywatch/skywatch-go/internal/conf"
)

var (
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	currentLevel        = slog.LevelInfo
	fileWriter          io.Writer
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// replaceLevelNames renames the custom TRACE/FATAL levels in log output.
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		label, exists := levelNames[level]
		if !exists {
			label = level.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}

func newHandlers(structuredOut, humanOut io.Writer, level slog.Level) (slog.Handler, slog.Handler) {
	structured := slog.NewJSONHandler(structuredOut, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})
	human := slog.NewTextHandler(humanOut, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: replaceLevelNames,
	})
	return structured, human
}

// Init initializes the logging system with structured and human-readable loggers.
func Init() {
	SetLevel(slog.LevelDebug)
}

// SetLevel rebuilds both loggers with the given minimum level for the
// structured logger. The human-readable logger stays at info. A file writer
// enabled through EnableFileLogging keeps receiving the structured stream.
func SetLevel(level slog.Level) {
	currentLevel = level

	structuredOut := io.Writer(os.Stdout)
	if fileWriter != nil {
		structuredOut = io.MultiWriter(os.Stdout, fileWriter)
	}

	structuredHandler, humanHandler := newHandlers(structuredOut, os.Stderr, level)
	structuredLogger = slog.New(structuredHandler)
	humanReadableLogger = slog.New(humanHandler)
	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable logger.
func HumanReadable() *slog.Logger {
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return nil
	}
	return structuredLogger.With("service", serviceName)
}

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// EnableFileLogging routes the structured JSON stream into a rotated log
// file in addition to stdout. Service-tagged loggers created afterwards via
// ForService inherit the file output. It returns a close function for the
// underlying writer.
func EnableFileLogging(cfg conf.LogConfig) (func() error, error) {
	w, err := newRotatingWriter(cfg)
	if err != nil {
		return nil, err
	}

	fileWriter = w
	SetLevel(currentLevel)

	return func() error {
		fileWriter = nil
		SetLevel(currentLevel)
		return w.Close()
	}, nil
}

// newRotatingWriter creates the lumberjack writer for the configured log
// file, mapping the rotation setting onto size/backup/age limits.
func newRotatingWriter(cfg conf.LogConfig) (*lumberjack.Logger, error) {
	logDir := filepath.Dir(cfg.Path)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	w := &lumberjack.Logger{
		Filename: cfg.Path,
	}

	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28 // days

	if configMaxSizeMB := int(cfg.MaxSize / (1024 * 1024)); configMaxSizeMB > 0 {
		maxSizeMB = configMaxSizeMB
	}

	switch cfg.Rotation {
	case conf.RotationDaily:
		maxAge = 1
		maxBackups = 30
	case conf.RotationWeekly:
		maxAge = 7
		maxBackups = 4
	case conf.RotationSize:
		// size-based rotation uses maxSizeMB as-is
	default:
		slog.Warn("Unknown log rotation type in config, using size-based defaults", "configuredType", cfg.Rotation)
	}

	w.MaxSize = maxSizeMB
	w.MaxBackups = maxBackups
	w.MaxAge = maxAge

	return w, nil
}
