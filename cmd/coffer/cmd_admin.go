package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coffer/internal/bootstrap"
)

// Guardian actions apply immediately; everything Owner-gated goes through the
// timelock (see cmd_timelock.go), because after bootstrap only the delay
// authority holds Owner.

// pauseCmd halts the vault
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Halt deposits and withdrawals (guardian)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdminOp(func(sys *bootstrap.System) error {
			return sys.Pause(requireCaller())
		}, "vault paused")
	},
}

// withdrawOnlyCmd restricts the vault to exits
var withdrawOnlyCmd = &cobra.Command{
	Use:   "withdraw-only",
	Short: "Restrict the vault to withdrawals and redemptions (guardian)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdminOp(func(sys *bootstrap.System) error {
			return sys.SetWithdrawOnly(requireCaller())
		}, "vault is withdraw-only")
	},
}

func runAdminOp(op func(*bootstrap.System) error, okMsg string) error {
	if caller == "" {
		return fmt.Errorf("--as is required: state-changing calls need an originating address")
	}
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := op(sys); err != nil {
		return err
	}
	fmt.Println(okMsg)
	return nil
}
