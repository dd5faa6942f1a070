// Package logger builds the zap loggers used by the commands.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig configures a logger.
type LoggerConfig struct {
	// Debug enables debug level output.
	Debug bool
	// File, if set, receives a copy of every log line. The file is appended to.
	File string
	// Writer receives console output. Defaults to stderr.
	Writer io.Writer
}

// NewLogger creates a logger writing to stderr and, optionally, to a log file.
// If the log file cannot be opened, the logger falls back to console output
// and reports the problem through the returned error.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(writer), level),
	}

	var fileErr error
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fileErr = fmt.Errorf("opening log file: %w", err)
		} else {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(f), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...)), fileErr
}
