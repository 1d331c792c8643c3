// Package emergency implements the three-state emergency machine guarding all
// vault accounting. The state is a tagged variant with a pure transition
// function; it is never modeled as independent boolean flags, which would
// permit invalid combinations.
//
// The authority split is deliberately asymmetric: a Guardian can only halt
// (Paused) or restrict (WithdrawOnly), never restore Normal. A compromised
// Guardian key is therefore bounded to denial of service; only the Owner (the
// delay authority, post-bootstrap) can reopen deposits.
package emergency

import "fmt"

// State is the process-wide emergency state. Exactly one value holds at any
// time.
type State uint8

const (
	// Normal permits all operations. Initial state.
	Normal State = iota
	// Paused blocks deposits and withdrawals. Full stop.
	Paused
	// WithdrawOnly blocks deposits but guarantees holders can still exit.
	WithdrawOnly
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Paused:
		return "paused"
	case WithdrawOnly:
		return "withdraw-only"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseState maps a state name to its State value.
func ParseState(s string) (State, bool) {
	switch s {
	case "normal":
		return Normal, true
	case "paused":
		return Paused, true
	case "withdraw-only":
		return WithdrawOnly, true
	default:
		return 0, false
	}
}

// InvalidTransitionError reports a rejected state transition. Self-transitions
// and the forbidden Paused→WithdrawOnly edge fail with this error, never a
// silent no-op.
type InvalidTransitionError struct {
	From   State
	To     State
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// transition is the pure transition function: it validates the edge and
// returns the new state or a typed failure. Authority checks live in the
// Controller; this function is only about the shape of the machine.
func transition(from, to State) (State, error) {
	if from == to {
		return from, &InvalidTransitionError{From: from, To: to, Reason: "already in state"}
	}
	if from == Paused && to == WithdrawOnly {
		return from, &InvalidTransitionError{From: from, To: to, Reason: "must resume to normal first"}
	}
	return to, nil
}
