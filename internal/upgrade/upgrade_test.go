package upgrade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffer/internal/access"
	"coffer/internal/asset"
)

const (
	owner    = asset.Address("timelock")
	intruder = asset.Address("intruder")
)

func v1() Implementation {
	return Implementation{
		Name:          "coffer-core",
		LayoutVersion: 1,
		StateKeys:     []string{"total_shares", "share_balances", "emergency_state"},
	}
}

func newTestSwapper(t *testing.T) *Swapper {
	t.Helper()
	return NewSwapper(access.NewRegistry(owner), v1())
}

func TestSwap_OwnerOnly(t *testing.T) {
	s := newTestSwapper(t)

	next := v1()
	next.Name = "coffer-core-v2"
	next.LayoutVersion = 2

	assert.ErrorIs(t, s.Swap(intruder, next), access.ErrUnauthorized)
	assert.Equal(t, "coffer-core", s.Current().Name, "rejected swap leaves current untouched")

	require.NoError(t, s.Swap(owner, next))
	assert.Equal(t, "coffer-core-v2", s.Current().Name)
	assert.Equal(t, 2, s.Current().LayoutVersion)
}

func TestSwap_RejectsLayoutDowngrade(t *testing.T) {
	s := newTestSwapper(t)
	next := v1()
	next.LayoutVersion = 0
	assert.ErrorIs(t, s.Swap(owner, next), ErrLayoutDowngrade)
}

func TestSwap_RejectsStateKeyCollision(t *testing.T) {
	s := newTestSwapper(t)

	t.Run("reordered key", func(t *testing.T) {
		next := v1()
		next.StateKeys = []string{"share_balances", "total_shares", "emergency_state"}
		err := s.Swap(owner, next)
		var lce *LayoutCollisionError
		require.True(t, errors.As(err, &lce))
		assert.Equal(t, 0, lce.Index)
		assert.Equal(t, "total_shares", lce.Current)
		assert.Equal(t, "share_balances", lce.Proposed)
	})

	t.Run("dropped key", func(t *testing.T) {
		next := v1()
		next.StateKeys = next.StateKeys[:2]
		err := s.Swap(owner, next)
		var lce *LayoutCollisionError
		require.True(t, errors.As(err, &lce))
		assert.Equal(t, 2, lce.Index)
		assert.Equal(t, "<missing>", lce.Proposed)
	})
}

func TestSwap_AppendOnlyExtensionAllowed(t *testing.T) {
	s := newTestSwapper(t)

	next := v1()
	next.Name = "coffer-core-v2"
	next.LayoutVersion = 2
	next.StateKeys = append(next.StateKeys, "withdrawal_queue")

	require.NoError(t, s.Swap(owner, next))
	assert.Equal(t, []string{"total_shares", "share_balances", "emergency_state", "withdrawal_queue"}, s.Current().StateKeys)

	// Same-version swap with an identical layout is a legal hot-fix path.
	fix := s.Current()
	fix.Name = "coffer-core-v2-fix"
	assert.NoError(t, s.Swap(owner, fix))
}
