// Package logging provides shared logger initialization for piigate
// binaries.
package logging

import (
	"os"

	"go.uber.org/zap"
)

// New creates a *zap.Logger configured via the LOG_LEVEL environment
// variable: "debug" selects a development config with debug-level output;
// any other value (including empty) selects production config.
// Returns the logger and a sync function the caller should defer.
func New() (*zap.Logger, func(), error) {
	var (
		log *zap.Logger
		err error
	)
	if os.Getenv("LOG_LEVEL") == "debug" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		log, err = cfg.Build()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}
