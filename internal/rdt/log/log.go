// Package log builds the zap.Logger every rdt-sender subsystem is handed
// at construction time, the same "NewProduction/NewDevelopment at startup,
// defer Sync" idiom every AetherFlow cmd/*-service/main.go follows.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production or development zap.Logger at the given level.
// dev selects zap.NewDevelopment's console encoding and caller/stacktrace
// verbosity; otherwise the JSON production encoder is used.
func New(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log: parse level %q: %w", level, err)
	}

	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("log: build development logger: %w", err)
		}
		return logger, nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("log: build production logger: %w", err)
	}
	return logger, nil
}
