package entity

import (
	"context"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// LockEntity is the lock actuator for one Glue Home lock.
type LockEntity struct {
	lookup
	set *Set
}

// UniqueID is the lock ID.
func (e *LockEntity) UniqueID() string {
	return e.lockID
}

// Name is the lock description.
func (e *LockEntity) Name() string {
	lock, _ := e.lock()
	return lock.Description
}

// State returns locking/unlocking while a command is in flight or its
// follow-up refresh is pending, otherwise the state implied by the last
// lock event.
func (e *LockEntity) State() string {
	if t := e.set.transition(e.lockID); t != "" {
		return t
	}
	lock, ok := e.lock()
	if !ok {
		return StateUnknown
	}
	return StateForEvent(lock.LastLockEvent.EventType)
}

// IsLocked reports whether the last event was a locking one.
func (e *LockEntity) IsLocked() bool {
	lock, ok := e.lock()
	return ok && StateForEvent(lock.LastLockEvent.EventType) == StateLocked
}

// Attributes returns the extra state attributes.
func (e *LockEntity) Attributes() map[string]any {
	lock, ok := e.lock()
	if !ok {
		return nil
	}
	var eventType any
	if lock.LastLockEvent.EventType != "" {
		eventType = lock.LastLockEvent.EventType
	}
	return map[string]any{
		AttrBatteryLevel:      batteryValue(lock.BatteryStatus),
		AttrConnectionStatus:  lock.ConnectionStatus,
		AttrLastLockEventType: eventType,
		AttrLastLockEventTime: eventTimeValue(lock.LastLockEvent.EventTime),
	}
}

// Snapshot renders the entity.
func (e *LockEntity) Snapshot() State {
	return State{
		UniqueID:   e.UniqueID(),
		LockID:     e.lockID,
		Kind:       KindLock,
		Name:       e.Name(),
		Available:  e.Available(),
		State:      e.State(),
		Attributes: e.Attributes(),
	}
}

// Lock runs a lock operation to completion.
func (e *LockEntity) Lock(ctx context.Context) (operation.Result, error) {
	return e.run(ctx, cloud.ActionLock)
}

// Unlock runs an unlock operation to completion.
func (e *LockEntity) Unlock(ctx context.Context) (operation.Result, error) {
	return e.run(ctx, cloud.ActionUnlock)
}

// Execute runs the named action (lock or unlock).
func (e *LockEntity) Execute(ctx context.Context, action string) (operation.Result, error) {
	if !operation.ValidAction(action) {
		return operation.Result{}, operation.ErrInvalidAction
	}
	return e.run(ctx, action)
}

func (e *LockEntity) run(ctx context.Context, action string) (operation.Result, error) {
	lock, ok := e.lock()
	if !ok {
		return operation.Result{}, ErrLockNotFound
	}

	transitional := StateLocking
	if action == cloud.ActionUnlock {
		transitional = StateUnlocking
	}
	e.set.setTransition(e.lockID, transitional)

	res, err := e.set.runner.Run(ctx, lock, action)
	if err == nil && (res.Outcome == operation.Settled || res.Outcome == operation.Unresolved) {
		// A refresh was requested; keep the transition until it lands.
		e.set.holdTransition(e.lockID)
		return res, nil
	}
	e.set.setTransition(e.lockID, "")
	return res, err
}
