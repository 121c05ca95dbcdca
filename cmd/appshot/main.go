package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"appshot/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	outputDir  string

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "appshot",
	Short: "appshot - automatic screenshot capture for local web apps",
	Long: `appshot watches the local machine for newly started web applications,
waits for them to become ready, and captures a structured set of
screenshots (multiple viewports, multiple pages, error-state detection)
for review.

Run "appshot monitor" to start the detection loop, or "appshot capture"
to screenshot a single running app.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if outputDir != "" {
			cfg.Capture.OutputDir = outputDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "console" {
			zcfg = zap.NewDevelopmentConfig()
		}
		if lvl, lerr := zapcore.ParseLevel(cfg.Logging.Level); lerr == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "appshot.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "override screenshot output directory")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(plansCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
