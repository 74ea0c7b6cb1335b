package entity

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// Runner executes lock operations.
type Runner interface {
	Run(ctx context.Context, lock cloud.Lock, action string) (operation.Result, error)
}

// Set builds entities for locks and tracks in-flight transitions.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Set struct {
	source Source
	runner Runner

	mu          sync.Mutex
	transitions map[string]pendingTransition
	listeners   []func(lockID string)
}

// pendingTransition is a locking/unlocking state. A held one belongs to a
// finished command whose result is not yet in the directory.
type pendingTransition struct {
	state string
	held  bool
}

// NewSet creates a Set reading locks from source and acting through runner.
func NewSet(source Source, runner Runner) *Set {
	return &Set{
		source:      source,
		runner:      runner,
		transitions: make(map[string]pendingTransition),
	}
}

// OnTransition registers fn to be called whenever a lock enters or leaves
// a locking/unlocking state. Listeners run synchronously, in registration order.
func (s *Set) OnTransition(fn func(lockID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Lock returns the lock entity for id.
func (s *Set) Lock(id string) *LockEntity {
	return &LockEntity{lookup: lookup{lockID: id, source: s.source}, set: s}
}

// ForLock returns every entity for one lock: the actuator then the sensors.
func (s *Set) ForLock(id string) []Entity {
	l := lookup{lockID: id, source: s.source}
	return []Entity{
		s.Lock(id),
		&BatteryLevelSensor{lookup: l},
		&LastLockEventTypeSensor{lookup: l},
		&LastLockEventTimeSensor{lookup: l},
	}
}

// ForLocks returns the entities of every given lock, in order.
func (s *Set) ForLocks(ids []string) []Entity {
	out := make([]Entity, 0, len(ids)*4)
	for _, id := range ids {
		out = append(out, s.ForLock(id)...)
	}
	return out
}

// Observe releases held transitions once a refresh succeeds, so the next
// rendering reflects the directory instead of the pre-command state.
// Register it with the coordinator before any state publisher.
func (s *Set) Observe(u coordinator.Update) {
	if u.Err != nil {
		return
	}

	s.mu.Lock()
	var released []string
	for id, t := range s.transitions {
		if t.held {
			delete(s.transitions, id)
			released = append(released, id)
		}
	}
	s.mu.Unlock()

	for _, id := range released {
		s.notify(id)
	}
}

func (s *Set) transition(lockID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions[lockID].state
}

func (s *Set) setTransition(lockID, state string) {
	s.mu.Lock()
	if state == "" {
		delete(s.transitions, lockID)
	} else {
		s.transitions[lockID] = pendingTransition{state: state}
	}
	s.mu.Unlock()

	s.notify(lockID)
}

// holdTransition keeps the current transition until the next Observe.
func (s *Set) holdTransition(lockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.transitions[lockID]; ok {
		t.held = true
		s.transitions[lockID] = t
	}
}

func (s *Set) notify(lockID string) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(lockID)
	}
}
