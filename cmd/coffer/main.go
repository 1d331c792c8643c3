package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"coffer/internal/bootstrap"
	"coffer/internal/config"
	"coffer/internal/logging"
	"coffer/internal/store"
)

var (
	// Global flags
	configPath string
	caller     string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "coffer",
	Short: "coffer - custody vault with layered authority",
	Long: `coffer custodies a single fungible asset and issues proportional
shares against it.

Administration is split across a layered authority model: a sole Owner (held
by the delay authority after bootstrap), Guardians that can only halt, and a
timelock that gates every Owner action behind a minimum wait. Run "coffer
status" for the current state.`,
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
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Shutdown()
	},
}

// openSystem loads config, initializes category logging, opens the store and
// returns the wired system. Callers must Close it.
func openSystem() (*bootstrap.System, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.DataDir, logging.Settings{
		Enabled:    cfg.Logging.Enabled,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	sys, err := bootstrap.New(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Debug("system ready",
		zap.String("data_dir", cfg.DataDir),
		zap.String("state", sys.Controller.State().String()))
	return sys, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "coffer.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&caller, "as", "", "address the call originates from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(redeemCmd)
	rootCmd.AddCommand(faucetCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(withdrawOnlyCmd)
	rootCmd.AddCommand(timelockCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
