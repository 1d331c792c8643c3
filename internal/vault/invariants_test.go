package vault

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffer/internal/asset"
)

// checkLedger asserts the standing invariants after every call: the share
// balances sum to the supply, and the reported total assets equal the literal
// custody balance.
func checkLedger(t *testing.T, f *fixture) {
	t.Helper()
	var sum uint64
	for _, s := range f.vault.Balances() {
		sum += s
	}
	require.Equal(t, f.vault.TotalShares(), sum, "share balances must sum to the supply")
	require.Equal(t, f.token.BalanceOf(vaultAddr), f.vault.TotalAssets(), "total assets must be the literal custody balance")
}

func TestInvariants_RandomizedCallSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := newFixture(t)
	actors := []asset.Address{alice, bob, mallory}

	var deposited, returned uint64
	for _, a := range actors {
		f.fund(t, a, 1_000_000)
	}

	for i := 0; i < 2000; i++ {
		actor := actors[rng.Intn(len(actors))]
		amount := uint64(rng.Intn(5000))

		switch rng.Intn(5) {
		case 0:
			if _, err := f.vault.Deposit(actor, actor, amount); err == nil {
				deposited += amount
			}
		case 1:
			if assets, err := f.vault.Mint(actor, actor, amount); err == nil {
				deposited += assets
			}
		case 2:
			if _, err := f.vault.Withdraw(actor, actor, actor, amount); err == nil {
				returned += amount
			}
		case 3:
			held := f.vault.SharesOf(actor)
			if held > 0 {
				burn := uint64(rng.Int63n(int64(held))) + 1
				if assets, err := f.vault.Redeem(actor, actor, actor, burn); err == nil {
					returned += assets
				}
			}
		case 4:
			// Hostile donation straight into custody.
			if f.token.BalanceOf(actor) >= amount {
				_ = f.token.Transfer(actor, vaultAddr, amount)
			}
		}

		checkLedger(t, f)
		require.LessOrEqual(t, returned, deposited+donationCeiling,
			"cumulative assets returned may never exceed what entered custody")
	}
}

// donationCeiling bounds the extra assets hostile donations can have pushed
// into the pool during the randomized run (3 actors * initial funding).
const donationCeiling = 3 * 1_000_000

func TestInvariants_DepositThenFullRedeemNeverProfits(t *testing.T) {
	for _, amount := range []uint64{1, 2, 99, 1000, 31337, 999999} {
		f := newFixture(t)
		f.fund(t, alice, amount)

		shares, err := f.vault.Deposit(alice, alice, amount)
		require.NoError(t, err)

		var out uint64
		if shares > 0 {
			out, err = f.vault.Redeem(alice, alice, alice, shares)
			require.NoError(t, err)
		}
		assert.LessOrEqual(t, out, amount, "deposit %d then full redeem returned %d", amount, out)
	}
}

func TestReentrancy_EffectsCommitBeforeOutboundTransfer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	_, err := f.vault.Deposit(alice, alice, 1000)
	require.NoError(t, err)

	// The hook fires during the outbound transfer of Redeem. By then the
	// burn must already be visible: a reentrant observer can never act on
	// stale entitlements.
	var observedShares uint64
	var observedSupply uint64
	reentered := false
	f.token.SetTransferHook(func(from, to asset.Address, amount uint64) {
		if from != vaultAddr || reentered {
			return
		}
		reentered = true
		f.token.SetTransferHook(nil)

		observedShares = f.vault.SharesOf(alice)
		observedSupply = f.vault.TotalShares()

		// A reentrant second redeem sees the reduced balance and fails.
		_, err := f.vault.Redeem(alice, alice, alice, 1000)
		assert.ErrorIs(t, err, ErrInsufficientShares)
	})

	_, err = f.vault.Redeem(alice, alice, alice, 600)
	require.NoError(t, err)
	require.True(t, reentered, "hook must have fired on the outbound transfer")

	assert.Equal(t, uint64(400), observedShares, "burn visible before the transfer")
	assert.Equal(t, uint64(400), observedSupply)
}

func TestReentrancy_ReentrantDepositDuringWithdraw(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	_, err := f.vault.Deposit(alice, alice, 1000)
	require.NoError(t, err)
	f.fund(t, bob, 500)

	// Bob deposits from inside alice's withdrawal. The ledger must stay
	// consistent through the interleaving.
	reentered := false
	f.token.SetTransferHook(func(from, to asset.Address, amount uint64) {
		if from != vaultAddr || reentered {
			return
		}
		reentered = true
		f.token.SetTransferHook(nil)

		_, err := f.vault.Deposit(bob, bob, 500)
		assert.NoError(t, err)
	})

	_, err = f.vault.Withdraw(alice, alice, alice, 100)
	require.NoError(t, err)
	require.True(t, reentered)

	checkLedger(t, f)
	assert.Greater(t, f.vault.SharesOf(bob), uint64(0))
}

// faultyAsset wraps a Token and fails outbound transfers on demand.
type faultyAsset struct {
	*asset.Token
	failTransfer bool
}

func (f *faultyAsset) Transfer(from, to asset.Address, amount uint64) error {
	if f.failTransfer {
		return asset.ErrInsufficientBalance
	}
	return f.Token.Transfer(from, to, amount)
}

func TestWithdraw_FailedOutboundTransferRestoresLedger(t *testing.T) {
	reg := newFixture(t) // reuse registry/controller wiring
	faulty := &faultyAsset{Token: reg.token}
	v := New(faulty, vaultAddr, reg.reg, reg.ctrl, nil)

	require.NoError(t, reg.token.Mint(alice, 100))
	require.NoError(t, reg.token.Approve(alice, vaultAddr, 100))
	_, err := v.Deposit(alice, alice, 100)
	require.NoError(t, err)

	// The burn is applied before the outbound transfer; when the transfer
	// fails, the burn must be restored and the call must leave zero net
	// mutation.
	faulty.failTransfer = true
	_, err = v.Withdraw(alice, alice, alice, 50)
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), v.SharesOf(alice), "burn rolled back on failed transfer")
	assert.Equal(t, uint64(100), v.TotalShares())

	_, err = v.Redeem(alice, alice, alice, 50)
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), v.SharesOf(alice))

	faulty.failTransfer = false
	_, err = v.Withdraw(alice, alice, alice, 50)
	assert.NoError(t, err)
}
