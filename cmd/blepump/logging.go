package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blepump/pkg/config"
)

// loadConfig reads --config and applies --log-level over it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// --log-level takes precedence over --verbose
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// configureLogger creates the command logger. Commands that draw their own
// progress output stay quiet unless a level was asked for explicitly.
func configureLogger(cmd *cobra.Command, cfg *config.Config, quiet bool) *logrus.Logger {
	logger := cfg.NewLogger()
	if quiet && !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("verbose") {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}
