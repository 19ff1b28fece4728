// Package logging builds the zap loggers used across irflow.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoder and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console (default) or json
	Output string // file path; empty means stderr
}

// New builds a production logger with ISO-8601 timestamps.
func New(o Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(defaultString(o.Level, "info")))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	prodConfig := zap.NewProductionConfig()
	prodConfig.Level = zap.NewAtomicLevelAt(level)
	switch strings.ToLower(defaultString(o.Format, "console")) {
	case "console":
		prodConfig.Encoding = "console"
	case "json":
		prodConfig.Encoding = "json"
	default:
		return nil, fmt.Errorf("log format %q: must be console or json", o.Format)
	}
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if o.Output != "" {
		prodConfig.OutputPaths = []string{o.Output}
		prodConfig.ErrorOutputPaths = []string{o.Output}
	}

	logger, err := prodConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
