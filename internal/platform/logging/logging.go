// Package logging configures the process-wide zap logger.
//
// The logger is initialized once per process; components obtain named child
// loggers through For. Level and format come from BROKERWELL_LOG_LEVEL and
// BROKERWELL_LOG_FORMAT so operators can switch between human-readable
// console output and structured JSON without a rebuild.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLevel  = "BROKERWELL_LOG_LEVEL"
	envFormat = "BROKERWELL_LOG_FORMAT"

	formatConsole = "CONSOLE"
	formatJSON    = "JSON"
)

var (
	initOnce sync.Once
	root     *zap.Logger
)

func parseLevel(value string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO", "":
		return zapcore.InfoLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(strings.TrimSpace(format), formatConsole) {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// Init builds the process logger from environment configuration. It is safe
// to call multiple times; only the first call takes effect.
func Init() *zap.Logger {
	initOnce.Do(func() {
		level := parseLevel(os.Getenv(envLevel))
		format := os.Getenv(envFormat)
		if format == "" {
			format = formatJSON
		}
		core := zapcore.NewCore(newEncoder(format), zapcore.Lock(os.Stdout), level)
		root = zap.New(core)
	})
	return root
}

// For returns a named child logger for a component.
func For(component string) *zap.Logger {
	return Init().Named(component)
}

// Sync flushes buffered log entries. Safe to defer at process exit.
func Sync() {
	if root != nil {
		_ = root.Sync()
	}
}
