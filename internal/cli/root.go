package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toolbox/internal/config"
	"toolbox/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a stream of missions over a resizable pool of workers",
	Long: `dispatch runs an enterprise: one missionner producing missions ahead of demand,
a pool of workers executing them, and a coordinator that hires, dismisses and
closes everything down on the first failure.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.AddCommand(newRunCmd())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) error {
	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile); err != nil {
			return fmt.Errorf("could not initialize logger: %w", err)
		}
	}
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}
	return nil
}
