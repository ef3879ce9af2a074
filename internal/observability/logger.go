// Package observability owns the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileConsole    = "console"
	ProfileStructured = "structured"
)

// CLILogger is the logger used by CLI commands. Library packages receive a
// logger through their options instead of using this variable.
var CLILogger = mustConsoleLogger()

func mustConsoleLogger() *zap.Logger {
	l, err := newLogger(zapcore.InfoLevel, ProfileConsole)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// InitCLILogger replaces CLILogger with a logger at level using profile
// ("console" or "structured").
func InitCLILogger(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l, err := newLogger(lvl, profile)
	if err != nil {
		return err
	}
	CLILogger = l
	return nil
}

func newLogger(level zapcore.Level, profile string) (*zap.Logger, error) {
	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.CallerKey = zapcore.OmitKey
		enc = zapcore.NewConsoleEncoder(cfg)
	case ProfileStructured:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown logging profile %q (want %s or %s)", profile, ProfileConsole, ProfileStructured)
	}

	// logs go to stderr so that command output on stdout stays parseable
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}
