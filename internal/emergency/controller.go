package emergency

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"coffer/internal/access"
	"coffer/internal/asset"
	"coffer/internal/logging"
)

// Event is the observable notification emitted on every successful
// transition.
type Event struct {
	Previous State
	New      State
	Caller   asset.Address
	At       time.Time
}

// Listener receives transition events synchronously, after the state has
// committed. Listeners are in-process and trusted.
type Listener func(Event)

// ErrGateClosed matches any GateClosedError under errors.Is.
var ErrGateClosed = errors.New("operation not permitted in current state")

// GateClosedError reports an accounting operation disallowed in the current
// emergency state.
type GateClosedError struct {
	Op    string
	State State
}

func (e *GateClosedError) Error() string {
	return fmt.Sprintf("%s not permitted while %s", e.Op, e.State)
}

func (e *GateClosedError) Is(target error) bool { return target == ErrGateClosed }

// Controller owns the process-wide emergency state and enforces the
// transition authorities:
//
//	normal        -> paused         guardian
//	withdraw-only -> paused         guardian
//	normal        -> withdraw-only  guardian
//	paused        -> normal         owner
//	withdraw-only -> normal         owner
//
// Paused -> withdraw-only is not permitted; the machine must pass through
// normal first.
type Controller struct {
	mu        sync.RWMutex
	state     State
	reg       *access.Registry
	listeners []Listener
	now       func() time.Time
}

// NewController creates a controller in the Normal state.
func NewController(reg *access.Registry) *Controller {
	return &Controller{state: Normal, reg: reg, now: time.Now}
}

// State returns the current emergency state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers a listener for transition events.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Pause moves to Paused. Guardian only; valid from Normal and WithdrawOnly.
func (c *Controller) Pause(caller asset.Address) error {
	if err := c.reg.RequireGuardian(caller, "pause"); err != nil {
		return err
	}
	return c.apply(caller, Paused)
}

// Unpause returns to Normal. Owner only: this is the only path out of
// Paused, and the one transition a Guardian can never trigger.
func (c *Controller) Unpause(caller asset.Address) error {
	if err := c.reg.RequireOwner(caller, "unpause"); err != nil {
		return err
	}
	return c.apply(caller, Normal)
}

// SetWithdrawOnly restricts the vault to exits. Guardian only; valid from
// Normal.
func (c *Controller) SetWithdrawOnly(caller asset.Address) error {
	if err := c.reg.RequireGuardian(caller, "set withdraw-only"); err != nil {
		return err
	}
	return c.apply(caller, WithdrawOnly)
}

// apply runs the pure transition function under the lock, commits, then
// notifies listeners outside the lock.
func (c *Controller) apply(caller asset.Address, to State) error {
	c.mu.Lock()
	prev := c.state
	next, err := transition(prev, to)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	at := c.now()
	c.mu.Unlock()

	logging.Emergency("transition: %s -> %s by=%s", prev, next, caller)
	ev := Event{Previous: prev, New: next, Caller: caller, At: at}
	for _, l := range listeners {
		l(ev)
	}
	return nil
}

// Restore force-sets the state without authority checks or notifications.
// Rehydration from persistence only.
func (c *Controller) Restore(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// DepositGate permits deposits and mints only in Normal.
func (c *Controller) DepositGate(op string) error {
	if s := c.State(); s != Normal {
		return &GateClosedError{Op: op, State: s}
	}
	return nil
}

// WithdrawGate permits withdrawals and redemptions in Normal and
// WithdrawOnly; only Paused blocks exits.
func (c *Controller) WithdrawGate(op string) error {
	if s := c.State(); s == Paused {
		return &GateClosedError{Op: op, State: s}
	}
	return nil
}
