package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gramkeeper/internal/config"
	"gramkeeper/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gramkeeper",
	Short: "gramkeeper - curated feed and engagement assistant",
	Long: `gramkeeper scrapes the profiles you follow closely, scores and
curates their recent posts, generates comment suggestions, and lets you
publish comments through a real browser session.

Run without arguments to start the HTTP server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		categories := map[string]bool{}
		for _, c := range cfg.Logging.Categories {
			categories[c] = true
		}
		if len(categories) == 0 {
			categories = nil
		}
		return logging.Initialize(cfg.DataDir, logging.Config{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Categories: categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCurationCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(nextRunCmd)
	rootCmd.AddCommand(profilesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
