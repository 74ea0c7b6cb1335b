package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
)

// mockOperations scripts the status returned by each poll.
type mockOperations struct {
	mu sync.Mutex

	createErr error
	statuses  []string // status for poll 1, 2, ...; the last one repeats
	reason    string
	pollErrAt int // 1-based poll that returns pollErr
	pollErr   error

	creates   int
	polls     int
	lastInput cloud.Operation
}

func (m *mockOperations) CreateOperation(_ context.Context, _, lockID, action string) (cloud.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return cloud.Operation{}, m.createErr
	}
	return cloud.Operation{ID: "op-1", LockID: lockID, Type: action, Status: cloud.StatusPending}, nil
}

func (m *mockOperations) PollOperation(_ context.Context, _ string, op cloud.Operation) (cloud.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	m.lastInput = op
	if m.pollErrAt == m.polls {
		return cloud.Operation{}, m.pollErr
	}

	status := m.statuses[len(m.statuses)-1]
	if m.polls <= len(m.statuses) {
		status = m.statuses[m.polls-1]
	}

	next := op
	next.Status = status
	if status == cloud.StatusFailed {
		next.Reason = m.reason
	}
	return next, nil
}

func (m *mockOperations) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

type mockRefresher struct {
	calls atomic.Int32
}

func (m *mockRefresher) RequestRefresh() {
	m.calls.Add(1)
}

type runOutcome struct {
	result Result
	err    error
	delays int
}

// drive runs r.Run in the background and advances the fake clock by the
// poll delay whenever the runner is waiting on it.
func drive(t *testing.T, ctx context.Context, r *Runner, clk *clockwork.FakeClock, lock cloud.Lock, action string) runOutcome {
	t.Helper()

	type ret struct {
		result Result
		err    error
	}
	done := make(chan ret, 1)
	go func() {
		res, err := r.Run(ctx, lock, action)
		done <- ret{res, err}
	}()

	delays := 0
	deadline := time.After(10 * time.Second)
	for {
		select {
		case out := <-done:
			return runOutcome{result: out.result, err: out.err, delays: delays}
		case <-deadline:
			t.Fatal("Run() did not return")
		default:
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := clk.BlockUntilContext(waitCtx, 1)
		cancel()
		if err == nil {
			clk.Advance(r.pollDelay)
			delays++
		}
	}
}

func newTestRunner(ops Operations, ref Refresher, clk clockwork.Clock, observers ...Observer) *Runner {
	return NewRunner(Options{
		Client:    ops,
		APIKey:    "key",
		Refresher: ref,
		Clock:     clk,
		Observers: observers,
	})
}

var frontDoor = cloud.Lock{ID: "lock-1", Description: "Front Door"}

func TestRun_PendingThenSettled(t *testing.T) {
	ops := &mockOperations{statuses: []string{"pending", "pending", "pending", "remoteLock"}}
	ref := &mockRefresher{}
	clk := clockwork.NewFakeClock()

	out := drive(t, context.Background(), newTestRunner(ops, ref, clk), clk, frontDoor, cloud.ActionLock)

	if out.err != nil {
		t.Fatalf("Run() error = %v", out.err)
	}
	if out.result.Outcome != Settled {
		t.Errorf("Outcome = %q, want %q", out.result.Outcome, Settled)
	}
	if out.result.Operation.Status != "remoteLock" {
		t.Errorf("Operation.Status = %q, want remoteLock", out.result.Operation.Status)
	}
	if out.delays != 3 {
		t.Errorf("delays = %d, want 3", out.delays)
	}
	if got := ops.pollCount(); got != 4 {
		t.Errorf("polls = %d, want 4", got)
	}
	if got := ref.calls.Load(); got != 1 {
		t.Errorf("RequestRefresh() calls = %d, want 1", got)
	}
}

func TestRun_ThreadsOperationIntoNextPoll(t *testing.T) {
	ops := &mockOperations{statuses: []string{"pending", "completed"}}
	clk := clockwork.NewFakeClock()

	out := drive(t, context.Background(), newTestRunner(ops, &mockRefresher{}, clk), clk, frontDoor, cloud.ActionUnlock)
	if out.err != nil {
		t.Fatalf("Run() error = %v", out.err)
	}

	ops.mu.Lock()
	defer ops.mu.Unlock()
	if ops.lastInput.ID != "op-1" || ops.lastInput.Status != cloud.StatusPending {
		t.Errorf("last poll input = %+v, want the previous poll's pending value", ops.lastInput)
	}
}

func TestRun_FailedAtPollN(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("failed at poll %d", n), func(t *testing.T) {
			statuses := make([]string, n)
			for i := range statuses {
				statuses[i] = cloud.StatusPending
			}
			statuses[n-1] = cloud.StatusFailed
			ops := &mockOperations{statuses: append(statuses, "completed"), reason: "motor jammed"}
			ref := &mockRefresher{}
			clk := clockwork.NewFakeClock()

			out := drive(t, context.Background(), newTestRunner(ops, ref, clk), clk, frontDoor, cloud.ActionLock)

			var failed *FailedError
			if !errors.As(out.err, &failed) {
				t.Fatalf("Run() error = %v, want *FailedError", out.err)
			}
			if failed.LockDescription != "Front Door" || failed.Action != "lock" || failed.Reason != "motor jammed" {
				t.Errorf("FailedError = %+v", failed)
			}
			if got := ops.pollCount(); got != n {
				t.Errorf("polls = %d, want %d", got, n)
			}
			if got := ref.calls.Load(); got != 0 {
				t.Errorf("RequestRefresh() calls = %d, want 0", got)
			}
		})
	}
}

func TestRun_NeverLeavesPending(t *testing.T) {
	ops := &mockOperations{statuses: []string{cloud.StatusPending}}
	ref := &mockRefresher{}
	clk := clockwork.NewFakeClock()

	start := clk.Now()
	out := drive(t, context.Background(), newTestRunner(ops, ref, clk), clk, frontDoor, cloud.ActionLock)

	if out.err != nil {
		t.Fatalf("Run() error = %v, want nil", out.err)
	}
	if out.result.Outcome != Unresolved {
		t.Errorf("Outcome = %q, want %q", out.result.Outcome, Unresolved)
	}
	if got := ops.pollCount(); got != DefaultMaxAttempts {
		t.Errorf("polls = %d, want %d", got, DefaultMaxAttempts)
	}
	if out.delays != DefaultMaxAttempts-1 {
		t.Errorf("delays = %d, want %d", out.delays, DefaultMaxAttempts-1)
	}
	if elapsed := clk.Since(start); elapsed != time.Duration(DefaultMaxAttempts-1)*time.Second {
		t.Errorf("elapsed = %v, want %v", elapsed, time.Duration(DefaultMaxAttempts-1)*time.Second)
	}
	if got := ref.calls.Load(); got != 1 {
		t.Errorf("RequestRefresh() calls = %d, want 1", got)
	}
}

func TestRun_InvalidAction(t *testing.T) {
	ops := &mockOperations{statuses: []string{"completed"}}
	r := newTestRunner(ops, &mockRefresher{}, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), frontDoor, "open")
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Run() error = %v, want ErrInvalidAction", err)
	}
	if ops.creates != 0 {
		t.Errorf("creates = %d, want 0", ops.creates)
	}
}

func TestRun_TransportErrorsPropagate(t *testing.T) {
	tests := []struct {
		name string
		ops  *mockOperations
		want error
	}{
		{
			name: "create invalid auth",
			ops:  &mockOperations{createErr: cloud.ErrInvalidAuth, statuses: []string{"pending"}},
			want: cloud.ErrInvalidAuth,
		},
		{
			name: "poll invalid auth",
			ops:  &mockOperations{statuses: []string{"pending"}, pollErrAt: 2, pollErr: cloud.ErrInvalidAuth},
			want: cloud.ErrInvalidAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &mockRefresher{}
			clk := clockwork.NewFakeClock()

			out := drive(t, context.Background(), newTestRunner(tt.ops, ref, clk), clk, frontDoor, cloud.ActionLock)

			if !errors.Is(out.err, tt.want) {
				t.Errorf("Run() error = %v, want %v", out.err, tt.want)
			}
			if got := ref.calls.Load(); got != 0 {
				t.Errorf("RequestRefresh() calls = %d, want 0", got)
			}
		})
	}
}

func TestRun_CancelDuringDelay(t *testing.T) {
	ops := &mockOperations{statuses: []string{cloud.StatusPending}}
	ref := &mockRefresher{}
	clk := clockwork.NewFakeClock()
	r := newTestRunner(ops, ref, clk)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, frontDoor, cloud.ActionLock)
		errCh <- err
	}()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer blockCancel()
	if err := clk.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("runner never waited on the clock: %v", err)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := ops.pollCount(); got != 1 {
		t.Errorf("polls = %d, want 1", got)
	}
	if got := ref.calls.Load(); got != 0 {
		t.Errorf("RequestRefresh() calls = %d, want 0", got)
	}
}

func TestRun_ObserversReceiveRecord(t *testing.T) {
	ops := &mockOperations{statuses: []string{"pending", "completed"}}
	clk := clockwork.NewFakeClock()

	var mu sync.Mutex
	var records []Record
	obs := func(rec Record) {
		mu.Lock()
		defer mu.Unlock()
		records = append(records, rec)
	}

	out := drive(t, context.Background(), newTestRunner(ops, &mockRefresher{}, clk, obs), clk, frontDoor, cloud.ActionUnlock)
	if out.err != nil {
		t.Fatalf("Run() error = %v", out.err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Outcome != "settled" || rec.Attempts != 2 || rec.OperationID != "op-1" || rec.Action != "unlock" {
		t.Errorf("Record = %+v", rec)
	}
	if got := rec.Finished.Sub(rec.Started); got != time.Second {
		t.Errorf("duration = %v, want 1s", got)
	}
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(Options{})
	if r.pollDelay != DefaultPollDelay {
		t.Errorf("pollDelay = %v, want %v", r.pollDelay, DefaultPollDelay)
	}
	if r.maxAttempts != DefaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", r.maxAttempts, DefaultMaxAttempts)
	}
	if r.clock == nil {
		t.Error("clock should default to the real clock")
	}
}
