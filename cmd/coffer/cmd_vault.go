package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coffer/internal/asset"
	"coffer/internal/bootstrap"
	"coffer/internal/config"
)

// initCmd writes a default config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

// statusCmd shows system status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault status",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		st := sys.StatusReport()
		fmt.Printf("state:         %s\n", st.State)
		fmt.Printf("total assets:  %d %s\n", st.TotalAssets, sys.Token.ID())
		fmt.Printf("total shares:  %d\n", st.TotalShares)
		fmt.Printf("owners:        %v\n", st.Owners)
		fmt.Printf("guardians:     %v\n", st.Guardians)
		fmt.Printf("pending ops:   %d\n", st.PendingOps)
		return nil
	},
}

// journalCmd prints recent audit journal entries
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent audit journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		entries, err := sys.Store.Journal(journalLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-10s %-12s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Detail)
		}
		return nil
	},
}

// depositCmd deposits assets for shares
var depositCmd = &cobra.Command{
	Use:   "deposit [assets] [receiver]",
	Short: "Deposit assets and receive shares",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVaultOp(args, func(sys *bootstrap.System, amount uint64, receiver asset.Address) (string, error) {
			shares, err := sys.Deposit(requireCaller(), receiver, amount)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("deposited %d, issued %d shares to %s", amount, shares, receiver), nil
		})
	},
}

// mintCmd mints an exact number of shares
var mintCmd = &cobra.Command{
	Use:   "mint [shares] [receiver]",
	Short: "Mint exact shares, paying the priced assets",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVaultOp(args, func(sys *bootstrap.System, shares uint64, receiver asset.Address) (string, error) {
			assets, err := sys.Mint(requireCaller(), receiver, shares)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("minted %d shares to %s for %d assets", shares, receiver, assets), nil
		})
	},
}

// withdrawCmd withdraws an exact asset amount
var withdrawCmd = &cobra.Command{
	Use:   "withdraw [assets] [receiver]",
	Short: "Withdraw exact assets, burning the priced shares",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVaultOp(args, func(sys *bootstrap.System, amount uint64, receiver asset.Address) (string, error) {
			c := requireCaller()
			shares, err := sys.Withdraw(c, receiver, c, amount)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("withdrew %d to %s, burned %d shares", amount, receiver, shares), nil
		})
	},
}

// redeemCmd redeems an exact share amount
var redeemCmd = &cobra.Command{
	Use:   "redeem [shares] [receiver]",
	Short: "Redeem exact shares for the priced assets",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVaultOp(args, func(sys *bootstrap.System, shares uint64, receiver asset.Address) (string, error) {
			c := requireCaller()
			assets, err := sys.Redeem(c, receiver, c, shares)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("redeemed %d shares, returned %d to %s", shares, assets, receiver), nil
		})
	},
}

// faucetCmd mints stand-in asset units (demo only)
var faucetCmd = &cobra.Command{
	Use:   "faucet [amount] [receiver]",
	Short: "Mint stand-in asset units to an address (demo only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVaultOp(args, func(sys *bootstrap.System, amount uint64, receiver asset.Address) (string, error) {
			if err := sys.Faucet(receiver, amount); err != nil {
				return "", err
			}
			return fmt.Sprintf("minted %d %s to %s", amount, sys.Token.ID(), receiver), nil
		})
	},
}

// approveCmd pre-authorizes the vault to pull assets
var approveCmd = &cobra.Command{
	Use:   "approve [amount]",
	Short: "Approve the vault to pull assets from the caller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if caller == "" {
			return fmt.Errorf("--as is required: state-changing calls need an originating address")
		}
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := sys.Approve(requireCaller(), amount); err != nil {
			return err
		}
		fmt.Printf("approved vault for %d\n", amount)
		return nil
	},
}

var journalLimit int

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "maximum entries to show")
}

// runVaultOp parses [amount, receiver], opens the system, runs the operation
// and prints its summary.
func runVaultOp(args []string, op func(*bootstrap.System, uint64, asset.Address) (string, error)) error {
	if caller == "" {
		return fmt.Errorf("--as is required: state-changing calls need an originating address")
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Close()

	msg, err := op(sys, amount, asset.Address(args[1]))
	if err != nil {
		logger.Debug("vault operation failed", zap.Error(err))
		return err
	}
	fmt.Println(msg)
	return nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return v, nil
}

// requireCaller returns the --as address; commands that mutate state refuse
// to guess an identity.
func requireCaller() asset.Address {
	return asset.Address(caller)
}
