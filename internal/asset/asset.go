// Package asset defines the fungible-asset interface the vault custodies, and
// an in-memory token used by tests, the CLI demo surface, and the bootstrap
// sequence. Asset identity is strictly separate from balances: two Fungible
// values are the same asset iff their IDs match.
package asset

import "errors"

// Address identifies an account. The zero value is the null address; grants
// and transfers to it are rejected where the component contracts say so.
type Address string

// Zero is the null address.
const Zero Address = ""

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool { return a == Zero }

// Fungible is the external asset contract the vault depends on.
//
// The vault requires BalanceOf to be the literal custody source of truth and
// transfers to be atomic: either the full amount moves and nil is returned, or
// nothing moves and an error is returned. Assets that do not conform (fee-on-
// transfer, rebasing) are an explicit, undefended integration risk.
type Fungible interface {
	// ID returns the asset identity, used to recognize the protected asset.
	ID() string
	// BalanceOf returns the held balance of addr.
	BalanceOf(addr Address) uint64
	// Transfer moves amount from `from` to `to`.
	Transfer(from, to Address, amount uint64) error
	// TransferFrom moves amount from `from` to `to` on behalf of spender,
	// consuming allowance.
	TransferFrom(spender, from, to Address, amount uint64) error
	// Approve sets spender's allowance over owner's balance.
	Approve(owner, spender Address, amount uint64) error
	// Allowance returns the remaining allowance spender has over owner.
	Allowance(owner, spender Address) uint64
}

// Resource errors, propagated unmodified through the vault per the error
// taxonomy.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)
