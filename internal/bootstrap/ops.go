package bootstrap

import (
	"fmt"

	"coffer/internal/access"
	"coffer/internal/asset"
)

// User-facing and guardian operations, wrapped so that every successful
// mutation is snapshotted to the store within the same call.

// Deposit pulls assets from caller and issues shares to receiver.
func (s *System) Deposit(caller, receiver asset.Address, assets uint64) (uint64, error) {
	shares, err := s.Vault.Deposit(caller, receiver, assets)
	if err != nil {
		return 0, err
	}
	return shares, s.Persist()
}

// Mint issues exact shares to receiver, pulling the priced assets from
// caller.
func (s *System) Mint(caller, receiver asset.Address, shares uint64) (uint64, error) {
	assets, err := s.Vault.Mint(caller, receiver, shares)
	if err != nil {
		return 0, err
	}
	return assets, s.Persist()
}

// Withdraw burns owner's shares and sends the exact assets to receiver.
func (s *System) Withdraw(caller, receiver, owner asset.Address, assets uint64) (uint64, error) {
	shares, err := s.Vault.Withdraw(caller, receiver, owner, assets)
	if err != nil {
		return 0, err
	}
	return shares, s.Persist()
}

// Redeem burns owner's exact shares and returns the priced assets to
// receiver.
func (s *System) Redeem(caller, receiver, owner asset.Address, shares uint64) (uint64, error) {
	assets, err := s.Vault.Redeem(caller, receiver, owner, shares)
	if err != nil {
		return 0, err
	}
	return assets, s.Persist()
}

// Pause halts the vault. Guardian only. State persistence rides on the
// controller's transition listener.
func (s *System) Pause(caller asset.Address) error {
	return s.Controller.Pause(caller)
}

// SetWithdrawOnly restricts the vault to exits. Guardian only.
func (s *System) SetWithdrawOnly(caller asset.Address) error {
	return s.Controller.SetWithdrawOnly(caller)
}

// Faucet mints stand-in asset units to addr. Demo setup only; a production
// deployment custodies an external asset and has no faucet.
func (s *System) Faucet(addr asset.Address, amount uint64) error {
	if err := s.Token.Mint(addr, amount); err != nil {
		return err
	}
	return s.Persist()
}

// Approve sets the vault's allowance over owner's stand-in asset balance, the
// pre-authorization every deposit and mint requires.
func (s *System) Approve(owner asset.Address, amount uint64) error {
	if err := s.Token.Approve(owner, s.Vault.Self(), amount); err != nil {
		return err
	}
	return s.Persist()
}

// Status is a point-in-time view of the system for the CLI.
type Status struct {
	State       string
	TotalAssets uint64
	TotalShares uint64
	Owners      []asset.Address
	Guardians   []asset.Address
	PendingOps  int
}

// Status reports the current system state.
func (s *System) StatusReport() Status {
	return Status{
		State:       s.Controller.State().String(),
		TotalAssets: s.Vault.TotalAssets(),
		TotalShares: s.Vault.TotalShares(),
		Owners:      s.Registry.Members(access.RoleOwner),
		Guardians:   s.Registry.Members(access.RoleGuardian),
		PendingOps:  len(s.Timelock.Pending()),
	}
}

// Close releases the store.
func (s *System) Close() error {
	if s.Store == nil {
		return nil
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
