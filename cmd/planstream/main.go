package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"planstream/internal/config"
	"planstream/internal/logging"
)

var (
	// Global flags
	configPath string
	workspace  string
	verbose    bool
	modelFlag  string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "planstream",
	Short: "planstream - concurrent phase-plan generation with steerable streaming",
	Long: `planstream turns a phase plan into generated phase documents by streaming
model output into per-phase buffers.

Each phase runs as an independent generation with its own lifecycle: it can
be observed while streaming, cancelled mid-stream keeping its partial
output, and regenerated with structured steering feedback. Fan-out runs
phases concurrently with isolated failure domains.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig resolves and loads the config file, applying the logging
// section and CLI overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".planstream", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyLogging()

	if modelFlag != "" {
		cfg.Backend.Model = modelFlag
	}
	if timeout > 0 {
		cfg.Backend.Timeout = timeout.String()
	}
	return cfg, nil
}

// resolvedConfigPath returns the path the config watcher should follow.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(workspace, ".planstream", "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <workspace>/.planstream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory for logs and config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model override")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "backend timeout override")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(regenerateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
