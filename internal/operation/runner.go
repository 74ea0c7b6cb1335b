package operation

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
)

// Defaults for the poll loop.
const (
	DefaultPollDelay   = time.Second
	DefaultMaxAttempts = 30
)

// Outcome describes how a non-failed run ended.
type Outcome string

const (
	// Settled means the server reported a terminal non-failed status.
	Settled Outcome = "settled"

	// Unresolved means the poll budget ran out while still pending.
	Unresolved Outcome = "unresolved"
)

// Result is the outcome of a run that did not fail.
type Result struct {
	Outcome   Outcome
	Operation cloud.Operation
	Attempts  int
}

// Operations is the subset of the cloud client the runner needs.
type Operations interface {
	CreateOperation(ctx context.Context, apiKey, lockID, action string) (cloud.Operation, error)
	PollOperation(ctx context.Context, apiKey string, op cloud.Operation) (cloud.Operation, error)
}

// Refresher is asked to refresh the lock directory after a run settles or
// goes unresolved.
type Refresher interface {
	RequestRefresh()
}

// Logger is the logging interface used by the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Record summarises one finished run for observers (history, metrics).
type Record struct {
	LockID      string
	Action      string
	OperationID string
	// Outcome is settled, unresolved, failed, cancelled or error.
	Outcome  string
	Reason   string
	Attempts int
	Started  time.Time
	Finished time.Time
	Err      error
}

// Observer receives a Record after every run, whatever its outcome.
type Observer func(Record)

// Options configures a Runner.
type Options struct {
	Client    Operations
	APIKey    string
	Refresher Refresher

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// PollDelay defaults to DefaultPollDelay.
	PollDelay time.Duration

	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int

	Logger    Logger
	Observers []Observer
}

// Runner issues lock operations and watches them until they settle.
//
// Thread Safety: Run may be called concurrently; each call is independent.
type Runner struct {
	client      Operations
	apiKey      string
	refresher   Refresher
	clock       clockwork.Clock
	pollDelay   time.Duration
	maxAttempts int
	logger      Logger
	observers   []Observer
}

// NewRunner creates a Runner, applying defaults for zero-valued options.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		client:      opts.Client,
		apiKey:      opts.APIKey,
		refresher:   opts.Refresher,
		clock:       opts.Clock,
		pollDelay:   opts.PollDelay,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		observers:   opts.Observers,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.pollDelay <= 0 {
		r.pollDelay = DefaultPollDelay
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultMaxAttempts
	}
	return r
}

// ValidAction reports whether action is lock or unlock.
func ValidAction(action string) bool {
	return action == cloud.ActionLock || action == cloud.ActionUnlock
}

// Run issues action against lock and polls until the operation leaves
// pending or the attempt budget is spent.
//
// Parameters:
//   - ctx: Cancels the run, including a pending delay
//   - lock: Target lock snapshot (its description labels failures)
//   - action: cloud.ActionLock or cloud.ActionUnlock
//
// Returns:
//   - Result: Settled or Unresolved; Unresolved is not success
//   - error: *FailedError, ErrInvalidAction, ctx.Err(), or a cloud error unchanged
func (r *Runner) Run(ctx context.Context, lock cloud.Lock, action string) (Result, error) {
	rec := Record{LockID: lock.ID, Action: action, Started: r.clock.Now()}

	if !ValidAction(action) {
		r.finish(rec, "error", ErrInvalidAction)
		return Result{}, ErrInvalidAction
	}

	op, err := r.client.CreateOperation(ctx, r.apiKey, lock.ID, action)
	if err != nil {
		return Result{}, r.fail(ctx, rec, err)
	}
	rec.OperationID = op.ID
	r.logDebug("operation created", "lock_id", lock.ID, "operation_id", op.ID, "action", action)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				rec.Attempts = attempt - 1
				r.finish(rec, "cancelled", ctx.Err())
				return Result{}, ctx.Err()
			case <-r.clock.After(r.pollDelay):
			}
		}

		op, err = r.client.PollOperation(ctx, r.apiKey, op)
		rec.Attempts = attempt
		if err != nil {
			return Result{}, r.fail(ctx, rec, err)
		}

		switch {
		case op.Failed():
			failed := &FailedError{
				LockDescription: lock.Description,
				Action:          action,
				Reason:          op.Reason,
			}
			rec.Reason = op.Reason
			r.logWarn("operation failed", "lock_id", lock.ID, "operation_id", op.ID, "action", action, "reason", op.Reason)
			r.finish(rec, "failed", failed)
			return Result{}, failed
		case !op.Pending():
			r.logInfo("operation settled", "lock_id", lock.ID, "operation_id", op.ID, "action", action, "status", op.Status, "attempts", attempt)
			r.requestRefresh()
			r.finish(rec, string(Settled), nil)
			return Result{Outcome: Settled, Operation: op, Attempts: attempt}, nil
		}
	}

	r.logWarn("operation still pending, giving up", "lock_id", lock.ID, "operation_id", op.ID, "action", action, "attempts", r.maxAttempts)
	r.requestRefresh()
	r.finish(rec, string(Unresolved), nil)
	return Result{Outcome: Unresolved, Operation: op, Attempts: r.maxAttempts}, nil
}

func (r *Runner) requestRefresh() {
	if r.refresher != nil {
		r.refresher.RequestRefresh()
	}
}

func (r *Runner) finish(rec Record, outcome string, err error) {
	rec.Outcome = outcome
	rec.Err = err
	rec.Finished = r.clock.Now()
	for _, obs := range r.observers {
		obs(rec)
	}
}

// fail records a transport error. A cancelled context wins over the
// network error it caused.
func (r *Runner) fail(ctx context.Context, rec Record, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.finish(rec, "cancelled", ctxErr)
		return ctxErr
	}
	r.finish(rec, "error", err)
	return err
}

func (r *Runner) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Runner) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
