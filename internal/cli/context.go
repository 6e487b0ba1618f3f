// internal/cli/context.go
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/config"
	"github.com/cmux-cli/uiverify/internal/logging"
)

// CLIContext holds the context for a CLI command
type CLIContext struct {
	Context context.Context
	Cancel  context.CancelFunc
	Config  *config.Config
	Logger  *zap.Logger
}

// NewCLIContext creates a context that ends on SIGINT/SIGTERM and a logger
// writing to stderr.
func NewCLIContext() (*CLIContext, error) {
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logger, err := logging.New(level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, &UsageError{Message: err.Error(), Err: err}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &CLIContext{
		Context: ctx,
		Cancel:  cancel,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

// Close releases the context and flushes the logger.
func (c *CLIContext) Close() {
	c.Cancel()
	_ = c.Logger.Sync()
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}

// IsJSONOutput returns true if JSON output mode is enabled
func IsJSONOutput() bool {
	return flagJSON
}
