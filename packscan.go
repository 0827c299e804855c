package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"packscan/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "packscan",
	Short: "Packing-station barcode scanner with camera snapshots",
	Long: `packscan records what went into every parcel.

Scan a three-digit packer ID to open a session, then scan product barcodes.
Each product scan takes a snapshot from the recorder or IP camera, stamps the
code and time on it, stores it in the session folder, appends a row to the
session spreadsheet and posts it to Telegram.

Run without a subcommand to read codes from the keyboard-wedge scanner.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, loadErr := config.Load(configPath)
		cfg = loaded

		var err error
		logger, err = buildLogger(cfg.LogFile, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if loadErr != nil {
			logger.Error("config not loaded, using defaults", zap.String("path", configPath), zap.Error(loadErr))
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("config has problems", zap.Error(err))
		}
		logger.Debug("config loaded", zap.String("path", configPath), zap.Any("config", cfg.Redacted()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runScanner,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path to the station config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(testCameraCmd)
	rootCmd.AddCommand(testRTSPCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(templatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger writes JSON logs to the station log file. With verbose the
// level drops to debug and logs are mirrored to stderr.
func buildLogger(logFile string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{logFile}
	zc.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		zc.OutputPaths = append(zc.OutputPaths, "stderr")
	}

	l, err := zc.Build()
	if err == nil {
		return l, nil
	}
	// unwritable log file: keep the station running with stderr only
	zc.OutputPaths = []string{"stderr"}
	fallback, ferr := zc.Build()
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	fallback.Warn("log file unavailable", zap.String("path", logFile), zap.Error(err))
	return fallback, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
