package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level picks the log level from the CLI switches. quiet wins over debug,
// and both win over the configured level.
func Level(configured string, quiet, debug bool) string {
	switch {
	case quiet:
		return "warn"
	case debug:
		return "debug"
	case configured == "":
		return "info"
	}
	return configured
}

// New builds a console logger writing to stderr at the named level.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.Sampling = nil
	config.DisableStacktrace = lvl > zapcore.DebugLevel

	return config.Build()
}
