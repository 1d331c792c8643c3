package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coffer/internal/config"
	"coffer/internal/logging"
)

var monitorInterval time.Duration

// monitorCmd watches the config file and periodically reports vault status
// until interrupted. Logging settings are hot-reloaded on config changes.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the config file and report vault status until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
			logging.Apply(logging.Settings{
				Enabled:    cfg.Logging.Enabled,
				Level:      cfg.Logging.Level,
				Categories: cfg.Logging.Categories,
			})
			logger.Info("logging settings reloaded", zap.String("level", cfg.Logging.Level))
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ticker := time.NewTicker(monitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					st := sys.StatusReport()
					fmt.Printf("%s  state=%s assets=%d shares=%d pending_ops=%d\n",
						time.Now().Format("15:04:05"), st.State, st.TotalAssets, st.TotalShares, st.PendingOps)
				}
			}
		})
		return g.Wait()
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 30*time.Second, "status report interval")
}
