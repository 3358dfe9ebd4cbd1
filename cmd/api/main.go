package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inkvault/api/internal/config"
	"inkvault/api/internal/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "inkvault-api",
	Short: "Versioned note store API",
	Long: `inkvault-api serves the notes HTTP API.

Running it without a subcommand is the same as "inkvault-api serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides NOTES_CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig resolves configuration and builds the process logger.
func loadConfig() (config.Config, zerolog.Logger, error) {
	if configFile != "" {
		if err := os.Setenv("NOTES_CONFIG_FILE", configFile); err != nil {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
