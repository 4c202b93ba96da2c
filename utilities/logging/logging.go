// Package logging builds the zap loggers used by the command line tool.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger that writes human-readable lines to stderr. Verbose
// loggers include debug messages, caller information and stack traces on
// warnings; the default only shows warnings and errors.
func New(verbose bool) (*zap.Logger, error) {
	var config zap.Config
	if verbose {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.Encoding = "console"
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.DisableStacktrace = true
		config.Sampling = nil
	}
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build()
}

// Install builds a logger with [New] and makes it zap's global logger. The
// returned function restores the previous global logger and flushes the new
// one.
func Install(verbose bool) (*zap.Logger, func(), error) {
	logger, err := New(verbose)
	if err != nil {
		return nil, nil, err
	}

	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		logger.Sync()
		restore()
	}, nil
}
