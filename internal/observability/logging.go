// Package observability provides logging construction for the arena server.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hypernova/arena/internal/config"
)

// Log formats accepted by NewLogger.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// NewLogger builds the process-wide structured logger.
//
// Precondition: cfg.Level parses as a zap level.
// Precondition: cfg.Format is FormatJSON or FormatConsole.
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var base zap.Config
	switch cfg.Format {
	case FormatJSON:
		base = zap.NewProductionConfig()
	case FormatConsole:
		base = zap.NewDevelopmentConfig()
		// Console output is for local runs; stack traces just bury the
		// match flow there.
		base.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	base.Level = zap.NewAtomicLevelAt(level)
	base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := base.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// WithMatch returns a child logger scoped to one match, so every line about
// that match carries the same match_id key.
func WithMatch(logger *zap.Logger, matchID string) *zap.Logger {
	return logger.With(zap.String("match_id", matchID))
}
