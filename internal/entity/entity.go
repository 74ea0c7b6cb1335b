package entity

import (
	"time"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
)

// Manufacturer is reported in every device record.
const Manufacturer = "Glue Home"

// Lock entity states.
const (
	StateLocked    = "locked"
	StateUnlocked  = "unlocked"
	StateUnknown   = "unknown"
	StateLocking   = "locking"
	StateUnlocking = "unlocking"
)

// Entity kinds.
const (
	KindLock   = "lock"
	KindSensor = "sensor"
)

// Attribute keys on the lock entity.
const (
	AttrBatteryLevel      = "battery_level"
	AttrConnectionStatus  = "connection_status"
	AttrLastLockEventType = "last_lock_event_type"
	AttrLastLockEventTime = "last_lock_event_time"
)

// Unique ID suffixes for the sensors.
const (
	SuffixBatteryLevel      = "_battery_level"
	SuffixLastLockEventType = "_last_lock_event_type"
	SuffixLastLockEventTime = "_last_lock_event_time"
)

var lockedEvents = map[string]struct{}{
	"pressAndGo": {},
	"localLock":  {},
	"manualLock": {},
	"remoteLock": {},
}

var unlockedEvents = map[string]struct{}{
	"localUnlock":  {},
	"manualUnlock": {},
	"remoteUnlock": {},
}

// StateForEvent maps a last lock event type to locked, unlocked or unknown.
func StateForEvent(eventType string) string {
	if _, ok := lockedEvents[eventType]; ok {
		return StateLocked
	}
	if _, ok := unlockedEvents[eventType]; ok {
		return StateUnlocked
	}
	return StateUnknown
}

// Source resolves a lock ID against the current directory.
type Source interface {
	Lock(id string) (cloud.Lock, bool)
}

// DeviceInfo describes the physical lock shared by its entities.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SWVersion    string `json:"sw_version"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// NewDeviceInfo builds the device record for a lock.
func NewDeviceInfo(lock cloud.Lock) DeviceInfo {
	return DeviceInfo{
		Identifier:   lock.ID,
		Name:         lock.Description,
		Manufacturer: Manufacturer,
		Model:        lock.ModelName(),
		SWVersion:    lock.FirmwareVersion,
		SerialNumber: lock.SerialNumber,
	}
}

// State is a point-in-time rendering of one entity.
type State struct {
	UniqueID       string         `json:"unique_id"`
	LockID         string         `json:"lock_id"`
	Kind           string         `json:"kind"`
	Name           string         `json:"name"`
	Available      bool           `json:"available"`
	State          any            `json:"state"`
	DeviceClass    string         `json:"device_class,omitempty"`
	StateClass     string         `json:"state_class,omitempty"`
	Unit           string         `json:"unit_of_measurement,omitempty"`
	EntityCategory string         `json:"entity_category,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Entity is anything published for a lock.
type Entity interface {
	UniqueID() string
	LockID() string
	Snapshot() State
}

// lookup is embedded by every entity.
type lookup struct {
	lockID string
	source Source
}

func (l lookup) LockID() string {
	return l.lockID
}

func (l lookup) lock() (cloud.Lock, bool) {
	return l.source.Lock(l.lockID)
}

// Available reports whether the lock exists and is connected or busy.
func (l lookup) Available() bool {
	lock, ok := l.lock()
	return ok && lock.Connected()
}

// DeviceInfo returns the device record, or false if the lock is gone.
func (l lookup) DeviceInfo() (DeviceInfo, bool) {
	lock, ok := l.lock()
	if !ok {
		return DeviceInfo{}, false
	}
	return NewDeviceInfo(lock), true
}

func eventTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func batteryValue(b *int) any {
	if b == nil {
		return nil
	}
	return *b
}
