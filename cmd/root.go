package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/facecheck/internal/config"
	"github.com/okian/facecheck/pkg/logger"
)

// cfg is loaded once before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "facecheck",
	Short: "Face-recognition check-in for conference attendees",
	Long: `facecheck recognises registered attendees from a camera feed and records
at most one check-in per attendee per day.

Configuration is layered: defaults, then the YAML file named by
FACECHECK_CONFIG, then FACECHECK_* environment variables (a .env file in
the working directory is honoured).`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithConfig(logger.Config{File: loaded.LogFile, Level: loaded.LogLevel}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	cfg = loaded
	return nil
}
