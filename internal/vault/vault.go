// Package vault implements the custody ledger: proportional share issuance
// against a single protected fungible asset, guarded by the emergency
// controller's gates, with recovery sweeps for foreign assets.
//
// Every operation reads the asset pool and share supply atomically at its
// start, applies all internal ledger updates before issuing any outbound
// transfer (effects before interactions), and either commits entirely or
// leaves no state change behind.
package vault

import (
	"fmt"
	"math"
	"sync"

	"coffer/internal/asset"
	"coffer/internal/emergency"
	"coffer/internal/logging"
)

// Journal receives an audit record for every successful state-changing
// operation. A nil Journal disables journaling.
type Journal interface {
	Record(actor asset.Address, action, detail string)
}

// Vault is the share ledger plus the custody pool. The pool itself is never a
// separately maintained counter: TotalAssets always reads the literal held
// balance of the protected asset, which eliminates drift between the two.
//
// All mutating operations serialize through a single mutex. Outbound asset
// transfers are issued after the ledger has committed and the lock has been
// released, so a reentrant call arriving during a transfer observes fully
// finalized state and can never double-spend an entitlement.
type Vault struct {
	mu    sync.RWMutex
	token asset.Fungible // the one protected asset
	self  asset.Address  // the vault's custody address
	reg   accessChecker
	gates *emergency.Controller
	jrnl  Journal

	shares      map[asset.Address]uint64
	totalShares uint64
}

// accessChecker is the slice of the access registry the vault consumes.
type accessChecker interface {
	RequireOwner(caller asset.Address, action string) error
}

// New creates an empty vault custodying token at address self.
func New(token asset.Fungible, self asset.Address, reg accessChecker, gates *emergency.Controller, jrnl Journal) *Vault {
	return &Vault{
		token:  token,
		self:   self,
		reg:    reg,
		gates:  gates,
		jrnl:   jrnl,
		shares: make(map[asset.Address]uint64),
	}
}

// Self returns the vault's custody address.
func (v *Vault) Self() asset.Address { return v.self }

// ProtectedAssetID returns the identity of the one protected asset.
func (v *Vault) ProtectedAssetID() string { return v.token.ID() }

// TotalAssets returns the literal custody balance of the protected asset.
func (v *Vault) TotalAssets() uint64 { return v.token.BalanceOf(v.self) }

// TotalShares returns the aggregate share supply.
func (v *Vault) TotalShares() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalShares
}

// SharesOf returns holder's share balance.
func (v *Vault) SharesOf(holder asset.Address) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shares[holder]
}

// Deposit pulls assets from caller and issues shares to receiver, rounding
// shares down. The pull must be pre-authorized via allowance; a failed pull
// aborts the operation with zero state mutation.
func (v *Vault) Deposit(caller, receiver asset.Address, assets uint64) (uint64, error) {
	if receiver.IsZero() {
		return 0, ErrNilReceiver
	}
	if err := v.gates.DepositGate("deposit"); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	pool := v.token.BalanceOf(v.self)
	shares, err := convertToShares(assets, v.totalShares, pool)
	if err != nil {
		return 0, err
	}
	if v.totalShares > math.MaxUint64-shares {
		return 0, ErrAmountOverflow
	}

	// Inbound pull happens before the ledger credit: if it fails, nothing
	// has been mutated.
	if err := v.token.TransferFrom(v.self, caller, v.self, assets); err != nil {
		return 0, err
	}
	v.credit(receiver, shares)

	logging.Vault("deposit: caller=%s receiver=%s assets=%d shares=%d", caller, receiver, assets, shares)
	v.record(caller, "deposit", fmt.Sprintf("assets=%d shares=%d receiver=%s", assets, shares, receiver))
	return shares, nil
}

// Mint pulls exactly enough assets from caller to issue the requested shares
// to receiver, rounding assets up so the caller pays at least fair value.
func (v *Vault) Mint(caller, receiver asset.Address, sharesRequested uint64) (uint64, error) {
	if receiver.IsZero() {
		return 0, ErrNilReceiver
	}
	if err := v.gates.DepositGate("mint"); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	pool := v.token.BalanceOf(v.self)
	assets, err := mulDivCeil(sharesRequested, pool+1, v.totalShares+1)
	if err != nil {
		return 0, err
	}
	if v.totalShares > math.MaxUint64-sharesRequested {
		return 0, ErrAmountOverflow
	}

	if err := v.token.TransferFrom(v.self, caller, v.self, assets); err != nil {
		return 0, err
	}
	v.credit(receiver, sharesRequested)

	logging.Vault("mint: caller=%s receiver=%s shares=%d assets=%d", caller, receiver, sharesRequested, assets)
	v.record(caller, "mint", fmt.Sprintf("shares=%d assets=%d receiver=%s", sharesRequested, assets, receiver))
	return assets, nil
}

// Withdraw burns shares from owner and sends the exact asset amount to
// receiver, rounding shares up so the owner surrenders at least fair value.
// The caller must be the share owner.
func (v *Vault) Withdraw(caller, receiver, owner asset.Address, assets uint64) (uint64, error) {
	if receiver.IsZero() {
		return 0, ErrNilReceiver
	}
	if caller != owner {
		return 0, ErrNotShareOwner
	}
	if err := v.gates.WithdrawGate("withdraw"); err != nil {
		return 0, err
	}

	v.mu.Lock()
	pool := v.token.BalanceOf(v.self)
	shares, err := mulDivCeil(assets, v.totalShares+1, pool+1)
	if err != nil {
		v.mu.Unlock()
		return 0, err
	}
	if v.shares[owner] < shares {
		v.mu.Unlock()
		return 0, ErrInsufficientShares
	}
	// Effects first: the burn commits before the outbound transfer is
	// issued, closing the reentrancy window.
	v.debit(owner, shares)
	v.mu.Unlock()

	if err := v.token.Transfer(v.self, receiver, assets); err != nil {
		v.mu.Lock()
		v.credit(owner, shares)
		v.mu.Unlock()
		return 0, err
	}

	logging.Vault("withdraw: owner=%s receiver=%s assets=%d shares=%d", owner, receiver, assets, shares)
	v.record(caller, "withdraw", fmt.Sprintf("assets=%d shares=%d receiver=%s", assets, shares, receiver))
	return shares, nil
}

// Redeem burns the given shares from owner and returns the proportional
// assets to receiver, rounding assets down so the vault retains any
// remainder. The caller must be the share owner.
func (v *Vault) Redeem(caller, receiver, owner asset.Address, sharesAmount uint64) (uint64, error) {
	if receiver.IsZero() {
		return 0, ErrNilReceiver
	}
	if caller != owner {
		return 0, ErrNotShareOwner
	}
	if err := v.gates.WithdrawGate("redeem"); err != nil {
		return 0, err
	}

	v.mu.Lock()
	pool := v.token.BalanceOf(v.self)
	assets, err := convertToAssets(sharesAmount, v.totalShares, pool)
	if err != nil {
		v.mu.Unlock()
		return 0, err
	}
	if v.shares[owner] < sharesAmount {
		v.mu.Unlock()
		return 0, ErrInsufficientShares
	}
	v.debit(owner, sharesAmount)
	v.mu.Unlock()

	if err := v.token.Transfer(v.self, receiver, assets); err != nil {
		v.mu.Lock()
		v.credit(owner, sharesAmount)
		v.mu.Unlock()
		return 0, err
	}

	logging.Vault("redeem: owner=%s receiver=%s shares=%d assets=%d", owner, receiver, sharesAmount, assets)
	v.record(caller, "redeem", fmt.Sprintf("shares=%d assets=%d receiver=%s", sharesAmount, assets, receiver))
	return assets, nil
}

// MaxDeposit reports the deposit capacity for receiver: zero whenever the
// state is not Normal, otherwise unbounded.
func (v *Vault) MaxDeposit(asset.Address) uint64 {
	if v.gates.State() != emergency.Normal {
		return 0
	}
	return math.MaxUint64
}

// MaxMint reports the mint capacity for receiver: zero whenever the state is
// not Normal, otherwise unbounded.
func (v *Vault) MaxMint(asset.Address) uint64 {
	if v.gates.State() != emergency.Normal {
		return 0
	}
	return math.MaxUint64
}

// MaxWithdraw reports owner's full asset entitlement; zero only while Paused.
// During WithdrawOnly the normal entitlement is reported, preserving the
// guarantee that holders can always eventually exit.
func (v *Vault) MaxWithdraw(owner asset.Address) uint64 {
	if v.gates.State() == emergency.Paused {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	assets, err := convertToAssets(v.shares[owner], v.totalShares, v.token.BalanceOf(v.self))
	if err != nil {
		return 0
	}
	return assets
}

// MaxRedeem reports owner's redeemable share balance; zero only while Paused.
func (v *Vault) MaxRedeem(owner asset.Address) uint64 {
	if v.gates.State() == emergency.Paused {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shares[owner]
}

// credit adds shares to holder. Caller must hold v.mu.
func (v *Vault) credit(holder asset.Address, shares uint64) {
	v.shares[holder] += shares
	v.totalShares += shares
}

// debit removes shares from holder, deleting the entry at zero. Caller must
// hold v.mu and have checked the balance.
func (v *Vault) debit(holder asset.Address, shares uint64) {
	v.shares[holder] -= shares
	v.totalShares -= shares
	if v.shares[holder] == 0 {
		delete(v.shares, holder)
	}
}

func (v *Vault) record(actor asset.Address, action, detail string) {
	if v.jrnl != nil {
		v.jrnl.Record(actor, action, detail)
	}
}

// Balances returns a copy of all non-zero share balances, for persistence.
func (v *Vault) Balances() map[asset.Address]uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[asset.Address]uint64, len(v.shares))
	for a, s := range v.shares {
		out[a] = s
	}
	return out
}

// RestoreShares replaces the share ledger, for rehydration from persistence.
func (v *Vault) RestoreShares(balances map[asset.Address]uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shares = make(map[asset.Address]uint64, len(balances))
	v.totalShares = 0
	for a, s := range balances {
		if s > 0 {
			v.shares[a] = s
			v.totalShares += s
		}
	}
}
