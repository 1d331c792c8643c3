package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// timelockCmd groups the delay-authority operations
var timelockCmd = &cobra.Command{
	Use:   "timelock",
	Short: "Schedule, execute and cancel Owner-gated operations",
	Long: `The delay authority is the only holder of the Owner role after
bootstrap. Owner-gated actions (unpause, grant, revoke, sweep, upgrade) are
scheduled here, wait out the configured minimum delay, and are then executed
with the authority's identity.

Examples:
  coffer timelock schedule unpause --as deployer
  coffer timelock schedule grant guardian alice --as deployer
  coffer timelock schedule sweep WETH treasury --as deployer
  coffer timelock execute 6dd9f0c4-... --as anyone
  coffer timelock cancel 6dd9f0c4-... --as deployer`,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [action] [args...]",
	Short: "Schedule an Owner-gated operation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if caller == "" {
			return fmt.Errorf("--as is required: scheduling needs an originating address")
		}
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		id, err := sys.Timelock.Schedule(requireCaller(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("scheduled %s as %s, executable after %s\n",
			args[0], id, sys.Timelock.MinDelay())
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute [id]",
	Short: "Execute a scheduled operation once its delay has elapsed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := sys.Timelock.Execute(requireCaller(), args[0]); err != nil {
			return err
		}
		fmt.Printf("executed %s\n", args[0])
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a pending operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if caller == "" {
			return fmt.Errorf("--as is required: cancellation needs an originating address")
		}
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := sys.Timelock.Cancel(requireCaller(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cancelled %s\n", args[0])
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ops := sys.Timelock.Pending()
		if len(ops) == 0 {
			fmt.Println("no pending operations")
			return nil
		}
		for _, op := range ops {
			ready := "ready"
			if remaining := time.Until(op.ReadyAt); remaining > 0 {
				ready = fmt.Sprintf("ready in %s", remaining.Round(time.Second))
			}
			fmt.Printf("%s  %-10s %v  (%s)\n", op.ID, op.Action, op.Args, ready)
		}
		return nil
	},
}

func init() {
	timelockCmd.AddCommand(scheduleCmd)
	timelockCmd.AddCommand(executeCmd)
	timelockCmd.AddCommand(cancelCmd)
	timelockCmd.AddCommand(pendingCmd)
}
