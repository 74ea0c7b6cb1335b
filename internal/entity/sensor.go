package entity

// Sensor device classes and categories.
const (
	DeviceClassBattery    = "battery"
	DeviceClassTimestamp  = "timestamp"
	StateClassMeasurement = "measurement"
	CategoryDiagnostic    = "diagnostic"
	UnitPercentage        = "%"
)

// BatteryLevelSensor reports the battery percentage.
type BatteryLevelSensor struct {
	lookup
}

func (s *BatteryLevelSensor) UniqueID() string {
	return s.lockID + SuffixBatteryLevel
}

func (s *BatteryLevelSensor) Name() string {
	lock, _ := s.lock()
	return lock.Description + " Battery Level"
}

// Value is the battery percentage, or nil when the lock does not report one.
func (s *BatteryLevelSensor) Value() any {
	lock, _ := s.lock()
	return batteryValue(lock.BatteryStatus)
}

func (s *BatteryLevelSensor) Snapshot() State {
	return State{
		UniqueID:       s.UniqueID(),
		LockID:         s.lockID,
		Kind:           KindSensor,
		Name:           s.Name(),
		Available:      s.Available(),
		State:          s.Value(),
		DeviceClass:    DeviceClassBattery,
		StateClass:     StateClassMeasurement,
		Unit:           UnitPercentage,
		EntityCategory: CategoryDiagnostic,
	}
}

// LastLockEventTypeSensor reports the raw last event type.
type LastLockEventTypeSensor struct {
	lookup
}

func (s *LastLockEventTypeSensor) UniqueID() string {
	return s.lockID + SuffixLastLockEventType
}

func (s *LastLockEventTypeSensor) Name() string {
	lock, _ := s.lock()
	return lock.Description + " Last Lock Event Type"
}

func (s *LastLockEventTypeSensor) Value() any {
	lock, _ := s.lock()
	if lock.LastLockEvent.EventType == "" {
		return nil
	}
	return lock.LastLockEvent.EventType
}

func (s *LastLockEventTypeSensor) Snapshot() State {
	return State{
		UniqueID:  s.UniqueID(),
		LockID:    s.lockID,
		Kind:      KindSensor,
		Name:      s.Name(),
		Available: s.Available(),
		State:     s.Value(),
	}
}

// LastLockEventTimeSensor reports when the last event happened (RFC 3339, UTC).
type LastLockEventTimeSensor struct {
	lookup
}

func (s *LastLockEventTimeSensor) UniqueID() string {
	return s.lockID + SuffixLastLockEventTime
}

func (s *LastLockEventTimeSensor) Name() string {
	lock, _ := s.lock()
	return lock.Description + " Last Lock Event Time"
}

func (s *LastLockEventTimeSensor) Value() any {
	lock, _ := s.lock()
	return eventTimeValue(lock.LastLockEvent.EventTime)
}

func (s *LastLockEventTimeSensor) Snapshot() State {
	return State{
		UniqueID:       s.UniqueID(),
		LockID:         s.lockID,
		Kind:           KindSensor,
		Name:           s.Name(),
		Available:      s.Available(),
		State:          s.Value(),
		DeviceClass:    DeviceClassTimestamp,
		EntityCategory: CategoryDiagnostic,
	}
}
