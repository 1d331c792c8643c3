// Package upgrade holds the authorization half of the implementation-swap
// facility. The swap mechanism itself is an external collaborator; what lives
// here is the identical Owner check used by every other privileged entry
// point, plus the rule that a new implementation may only append persisted
// state, never collide with the existing layout.
package upgrade

import (
	"errors"
	"fmt"
	"sync"

	"coffer/internal/asset"
	"coffer/internal/logging"
)

// Implementation describes a candidate implementation: its name, the version
// of its persisted state layout, and the ordered state keys it declares.
type Implementation struct {
	Name          string
	LayoutVersion int
	StateKeys     []string
}

// ErrLayoutDowngrade rejects a swap to a lower layout version.
var ErrLayoutDowngrade = errors.New("implementation layout version lower than current")

// LayoutCollisionError reports a new implementation whose state keys do not
// extend the current layout append-only.
type LayoutCollisionError struct {
	Index    int
	Current  string
	Proposed string
}

func (e *LayoutCollisionError) Error() string {
	return fmt.Sprintf("state layout collision at slot %d: current %q, proposed %q", e.Index, e.Current, e.Proposed)
}

// ownerChecker is the slice of the access registry consumed here.
type ownerChecker interface {
	RequireOwner(caller asset.Address, action string) error
}

// Swapper gates implementation swaps.
type Swapper struct {
	mu      sync.RWMutex
	reg     ownerChecker
	current Implementation
}

// NewSwapper creates a swapper with the deployed implementation.
func NewSwapper(reg ownerChecker, current Implementation) *Swapper {
	return &Swapper{reg: reg, current: current}
}

// Current returns the active implementation descriptor.
func (s *Swapper) Current() Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Swap authorizes and records a move to the next implementation. Owner only.
// The next layout version must not decrease, and existing state keys must be
// preserved in place: new state may only be appended after them.
func (s *Swapper) Swap(caller asset.Address, next Implementation) error {
	if err := s.reg.RequireOwner(caller, "upgrade"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.LayoutVersion < s.current.LayoutVersion {
		return ErrLayoutDowngrade
	}
	for i, key := range s.current.StateKeys {
		if i >= len(next.StateKeys) || next.StateKeys[i] != key {
			proposed := "<missing>"
			if i < len(next.StateKeys) {
				proposed = next.StateKeys[i]
			}
			return &LayoutCollisionError{Index: i, Current: key, Proposed: proposed}
		}
	}

	prev := s.current
	s.current = next
	logging.Boot("upgrade: %s (layout v%d) -> %s (layout v%d) by=%s",
		prev.Name, prev.LayoutVersion, next.Name, next.LayoutVersion, caller)
	return nil
}
