package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewConsole builds the zap logger used for CLI-visible output, following
// the same production-config-plus-verbose-override shape used for console
// logging elsewhere in the corpus this package is adapted from.
func NewConsole(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = ""
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}
