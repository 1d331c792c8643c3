package timelock

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffer/internal/asset"
)

const (
	authorityAddr = asset.Address("timelock")
	proposer      = asset.Address("deployer")
	rando         = asset.Address("rando")
)

// recordingDispatcher captures dispatched calls and can be armed to fail.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (d *recordingDispatcher) Dispatch(caller asset.Address, action string, args []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.calls = append(d.calls, fmt.Sprintf("%s:%s:%v", caller, action, args))
	return nil
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAuthority(t *testing.T, delay time.Duration) (*Authority, *recordingDispatcher, *testClock) {
	t.Helper()
	disp := &recordingDispatcher{}
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(authorityAddr, delay, []asset.Address{proposer}, disp, nil)
	a.SetClock(clock.Now)
	return a, disp, clock
}

func TestSchedule_ProposerOnly(t *testing.T) {
	a, _, _ := newTestAuthority(t, time.Hour)

	_, err := a.Schedule(rando, "unpause", nil)
	assert.ErrorIs(t, err, ErrNotProposer)

	id, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, a.Pending(), 1)
}

func TestExecute_EnforcesMinimumDelay(t *testing.T) {
	a, disp, clock := newTestAuthority(t, time.Hour)
	id, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)

	t.Run("too early", func(t *testing.T) {
		err := a.Execute(rando, id)
		var nre *NotReadyError
		require.True(t, errors.As(err, &nre))
		assert.Equal(t, id, nre.ID)
		assert.Greater(t, nre.Remaining, time.Duration(0))
		assert.Empty(t, disp.calls)
	})

	t.Run("one second short", func(t *testing.T) {
		clock.Advance(time.Hour - time.Second)
		assert.Error(t, a.Execute(rando, id))
	})

	t.Run("after the delay anyone may execute", func(t *testing.T) {
		clock.Advance(2 * time.Second)
		require.NoError(t, a.Execute(rando, id))
		require.Len(t, disp.calls, 1)
		// The dispatched call carries the authority's identity, not the
		// executor's.
		assert.Equal(t, "timelock:unpause:[]", disp.calls[0])
	})
}

func TestExecute_ReplayRejected(t *testing.T) {
	a, disp, clock := newTestAuthority(t, time.Minute)
	id, err := a.Schedule(proposer, "grant", []string{"guardian", "alice"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, a.Execute(proposer, id))
	require.Len(t, disp.calls, 1)

	assert.ErrorIs(t, a.Execute(proposer, id), ErrAlreadyExecuted)
	assert.Len(t, disp.calls, 1, "replay must not dispatch")
	assert.Empty(t, a.Pending())
}

func TestExecute_FailedDispatchLeavesOperationPending(t *testing.T) {
	a, disp, clock := newTestAuthority(t, time.Minute)
	id, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	disp.fail = errors.New("not paused")
	require.Error(t, a.Execute(proposer, id))
	assert.Len(t, a.Pending(), 1, "failed execution keeps the operation pending")

	disp.fail = nil
	assert.NoError(t, a.Execute(proposer, id))
}

// gatedDispatcher blocks every dispatch until released, counting calls.
type gatedDispatcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (d *gatedDispatcher) Dispatch(caller asset.Address, action string, args []string) error {
	d.calls.Add(1)
	<-d.release
	return nil
}

func TestExecute_OverlappingCallsDispatchOnce(t *testing.T) {
	disp := &gatedDispatcher{release: make(chan struct{})}
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(authorityAddr, time.Minute, []asset.Address{proposer}, disp, nil)
	a.SetClock(clock.Now)

	id, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	// Two racing executors: the operation is claimed before the dispatch
	// runs, so exactly one call reaches the dispatcher and the other is
	// rejected as a replay even while the first is still in flight.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.Execute(rando, id)
		}()
	}

	require.Eventually(t, func() bool {
		return disp.calls.Load() == 1
	}, 5*time.Second, time.Millisecond)
	close(disp.release)
	wg.Wait()
	close(errs)

	var ok, replayed int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyExecuted):
			replayed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, replayed)
	assert.Equal(t, int32(1), disp.calls.Load(), "the dispatch must run exactly once")
}

func TestCancel_RejectedWhileDispatchInFlight(t *testing.T) {
	disp := &gatedDispatcher{release: make(chan struct{})}
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(authorityAddr, time.Minute, []asset.Address{proposer}, disp, nil)
	a.SetClock(clock.Now)

	id, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	done := make(chan error, 1)
	go func() { done <- a.Execute(rando, id) }()
	require.Eventually(t, func() bool {
		return disp.calls.Load() == 1
	}, 5*time.Second, time.Millisecond)

	assert.ErrorIs(t, a.Cancel(proposer, id), ErrAlreadyExecuted)

	close(disp.release)
	require.NoError(t, <-done)
}

func TestExecute_UnknownOperation(t *testing.T) {
	a, _, _ := newTestAuthority(t, time.Minute)
	assert.ErrorIs(t, a.Execute(proposer, "no-such-id"), ErrUnknownOperation)
}

func TestCancel(t *testing.T) {
	a, disp, clock := newTestAuthority(t, time.Minute)
	id, err := a.Schedule(proposer, "sweep", []string{"WETH", "treasury"})
	require.NoError(t, err)

	t.Run("proposer only", func(t *testing.T) {
		assert.ErrorIs(t, a.Cancel(rando, id), ErrNotProposer)
	})

	t.Run("removes the operation entirely", func(t *testing.T) {
		require.NoError(t, a.Cancel(proposer, id))
		assert.Empty(t, a.Pending())

		// Cancelled is indistinguishable from never scheduled.
		clock.Advance(time.Hour)
		assert.ErrorIs(t, a.Execute(proposer, id), ErrUnknownOperation)
		assert.Empty(t, disp.calls)
	})

	t.Run("cannot cancel an executed operation", func(t *testing.T) {
		id, err := a.Schedule(proposer, "unpause", nil)
		require.NoError(t, err)
		clock.Advance(time.Hour)
		require.NoError(t, a.Execute(proposer, id))
		assert.ErrorIs(t, a.Cancel(proposer, id), ErrAlreadyExecuted)
	})
}

func TestPending_OrderedByReadiness(t *testing.T) {
	a, _, clock := newTestAuthority(t, time.Hour)

	first, err := a.Schedule(proposer, "unpause", nil)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	second, err := a.Schedule(proposer, "grant", []string{"operator", "bob"})
	require.NoError(t, err)

	ops := a.Pending()
	require.Len(t, ops, 2)
	assert.Equal(t, first, ops[0].ID)
	assert.Equal(t, second, ops[1].ID)
	assert.Equal(t, time.Hour, ops[0].ReadyAt.Sub(ops[0].ScheduledAt))
}

func TestRestore(t *testing.T) {
	a, disp, clock := newTestAuthority(t, time.Hour)

	ready := clock.Now().Add(-time.Minute) // already past its delay
	a.Restore([]Operation{
		{ID: "op-1", Proposer: proposer, Action: "unpause", ScheduledAt: ready.Add(-time.Hour), ReadyAt: ready, Status: StatusPending},
		{ID: "op-2", Proposer: proposer, Action: "grant", Args: []string{"guardian", "a"}, ScheduledAt: ready, ReadyAt: ready.Add(time.Hour), Status: StatusExecuted},
	})

	assert.Len(t, a.Pending(), 1)
	require.NoError(t, a.Execute(rando, "op-1"))
	assert.Len(t, disp.calls, 1)
	assert.ErrorIs(t, a.Execute(rando, "op-2"), ErrAlreadyExecuted)
}
