// Package timelock implements the delay authority: the external collaborator
// that gates the Owner's most sensitive actions behind a minimum wait.
//
// The authority has its own address; the bootstrap sequence grants that
// address the Owner role. Scheduled actions are executed with the authority's
// identity as caller, which is the only way Owner-gated operations are
// reachable after bootstrap. Scheduling and execution are two independent
// atomic calls separated by the minimum delay; cancellation removes the
// pending operation entirely, and replay of an executed operation is
// rejected.
package timelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"coffer/internal/asset"
	"coffer/internal/logging"
)

// Status of a scheduled operation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
)

// Operation is a scheduled administrative call.
type Operation struct {
	ID          string
	Proposer    asset.Address
	Action      string
	Args        []string
	ScheduledAt time.Time
	ReadyAt     time.Time
	Status      Status
}

// Dispatcher resolves an action name and arguments into the actual
// administrative call, invoked with the authority's identity as caller.
type Dispatcher interface {
	Dispatch(caller asset.Address, action string, args []string) error
}

// Sink persists operation lifecycle changes. A nil Sink disables persistence.
type Sink interface {
	SaveOperation(op Operation) error
	UpdateOperationStatus(id string, status Status) error
	DeleteOperation(id string) error
}

var (
	// ErrUnknownOperation reports an id that is neither pending nor executed
	// (never scheduled, or cancelled).
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrAlreadyExecuted rejects replay of an executed operation.
	ErrAlreadyExecuted = errors.New("operation already executed")
	// ErrNotProposer rejects schedule/cancel calls from outside the proposer
	// set.
	ErrNotProposer = errors.New("caller is not a proposer")
)

// NotReadyError reports execution attempted before the minimum delay has
// elapsed.
type NotReadyError struct {
	ID        string
	Remaining time.Duration
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("operation %s not ready: %s remaining", e.ID, e.Remaining)
}

// Authority is the delay-enforcing scheduler.
type Authority struct {
	mu        sync.Mutex
	addr      asset.Address // the identity that holds Owner post-bootstrap
	minDelay  time.Duration
	proposers map[asset.Address]struct{}
	ops       map[string]*Operation
	disp      Dispatcher
	sink      Sink
	now       func() time.Time
}

// New creates an authority. proposers may schedule and cancel; execution is
// open to anyone once the delay has elapsed.
func New(addr asset.Address, minDelay time.Duration, proposers []asset.Address, disp Dispatcher, sink Sink) *Authority {
	ps := make(map[asset.Address]struct{}, len(proposers))
	for _, p := range proposers {
		ps[p] = struct{}{}
	}
	return &Authority{
		addr:      addr,
		minDelay:  minDelay,
		proposers: ps,
		ops:       make(map[string]*Operation),
		disp:      disp,
		sink:      sink,
		now:       time.Now,
	}
}

// Address returns the authority's identity.
func (a *Authority) Address() asset.Address { return a.addr }

// MinDelay returns the configured minimum wait.
func (a *Authority) MinDelay() time.Duration { return a.minDelay }

// SetClock overrides the time source. Tests only.
func (a *Authority) SetClock(now func() time.Time) { a.now = now }

// Schedule records an operation and returns its id. The operation becomes
// executable once the minimum delay has elapsed.
func (a *Authority) Schedule(caller asset.Address, action string, args []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.proposers[caller]; !ok {
		return "", ErrNotProposer
	}

	now := a.now()
	op := &Operation{
		ID:          uuid.NewString(),
		Proposer:    caller,
		Action:      action,
		Args:        args,
		ScheduledAt: now,
		ReadyAt:     now.Add(a.minDelay),
		Status:      StatusPending,
	}
	a.ops[op.ID] = op
	if a.sink != nil {
		if err := a.sink.SaveOperation(*op); err != nil {
			delete(a.ops, op.ID)
			return "", fmt.Errorf("failed to persist operation: %w", err)
		}
	}

	logging.Timelock("schedule: id=%s action=%s args=%s ready_at=%s by=%s",
		op.ID, action, argsLabel(args), op.ReadyAt.Format(time.RFC3339), caller)
	return op.ID, nil
}

// Execute runs a pending operation once its delay has elapsed. The scheduled
// call is dispatched with the authority's own identity as caller. A failed
// dispatch leaves the operation pending; success marks it executed, and a
// second execution of the same id is rejected.
func (a *Authority) Execute(caller asset.Address, id string) error {
	a.mu.Lock()
	op, ok := a.ops[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownOperation
	}
	if op.Status == StatusExecuted {
		a.mu.Unlock()
		return ErrAlreadyExecuted
	}
	if remaining := op.ReadyAt.Sub(a.now()); remaining > 0 {
		a.mu.Unlock()
		return &NotReadyError{ID: id, Remaining: remaining}
	}
	// Claim the operation before dispatching so an overlapping Execute on the
	// same id is rejected rather than dispatching a second time. A failed
	// dispatch reverts the claim.
	op.Status = StatusExecuted
	action, args := op.Action, op.Args
	a.mu.Unlock()

	if err := a.disp.Dispatch(a.addr, action, args); err != nil {
		a.mu.Lock()
		op.Status = StatusPending
		a.mu.Unlock()
		return fmt.Errorf("execute %s (%s): %w", id, action, err)
	}

	if a.sink != nil {
		if err := a.sink.UpdateOperationStatus(id, StatusExecuted); err != nil {
			logging.Get(logging.CategoryTimelock).Error("failed to persist executed status for %s: %v", id, err)
		}
	}

	logging.Timelock("execute: id=%s action=%s by=%s", id, action, caller)
	return nil
}

// Cancel removes a pending operation entirely. Proposers only; an executed
// operation cannot be cancelled.
func (a *Authority) Cancel(caller asset.Address, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.proposers[caller]; !ok {
		return ErrNotProposer
	}
	op, ok := a.ops[id]
	if !ok {
		return ErrUnknownOperation
	}
	if op.Status == StatusExecuted {
		return ErrAlreadyExecuted
	}
	delete(a.ops, id)
	if a.sink != nil {
		if err := a.sink.DeleteOperation(id); err != nil {
			return fmt.Errorf("failed to remove persisted operation: %w", err)
		}
	}

	logging.Timelock("cancel: id=%s action=%s by=%s", id, op.Action, caller)
	return nil
}

// Pending returns all pending operations ordered by readiness time.
func (a *Authority) Pending() []Operation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Operation, 0, len(a.ops))
	for _, op := range a.ops {
		if op.Status == StatusPending {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadyAt.Before(out[j].ReadyAt) })
	return out
}

// Restore reloads operations from persistence. Boot only.
func (a *Authority) Restore(ops []Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range ops {
		op := ops[i]
		a.ops[op.ID] = &op
	}
}

func argsLabel(args []string) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "[]"
	}
	return string(b)
}
