package vault

import (
	"fmt"

	"coffer/internal/asset"
	"coffer/internal/logging"
)

// Sweep transfers the vault's full held balance of a foreign asset to
// recipient. Owner only, but valid in every emergency state: administrative
// recovery is exempt from the user-facing gates.
//
// The protected asset is unsweepable unconditionally. The identity check runs
// before the authority check so that no privileged path, the delay authority
// included, can ever move the custody pool through this entry point. A zero
// foreign balance is a valid no-op, not a failure.
func (v *Vault) Sweep(caller asset.Address, foreign asset.Fungible, recipient asset.Address) error {
	if foreign.ID() == v.token.ID() {
		return ErrCannotSweepProtectedAsset
	}
	if err := v.reg.RequireOwner(caller, "sweep"); err != nil {
		return err
	}
	if recipient.IsZero() {
		return ErrNilReceiver
	}

	balance := foreign.BalanceOf(v.self)
	if balance == 0 {
		logging.Sweep("sweep: asset=%s balance=0, nothing to do", foreign.ID())
		return nil
	}
	if err := foreign.Transfer(v.self, recipient, balance); err != nil {
		return err
	}

	logging.Sweep("sweep: asset=%s amount=%d recipient=%s by=%s", foreign.ID(), balance, recipient, caller)
	v.record(caller, "sweep", fmt.Sprintf("asset=%s amount=%d recipient=%s", foreign.ID(), balance, recipient))
	return nil
}
