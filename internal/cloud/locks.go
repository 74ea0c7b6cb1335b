package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Connection statuses reported by the API. The set is open; these are the
// values the bridge gives meaning to.
const (
	ConnectionConnected    = "connected"
	ConnectionBusy         = "busy"
	ConnectionDisconnected = "disconnected"
	ConnectionUnknown      = "unknown"
)

// modelNameLength is how many leading serial number characters form the model name.
const modelNameLength = 4

// Lock is an immutable snapshot of one lock as reported by a single fetch.
type Lock struct {
	ID               string
	Description      string
	SerialNumber     string
	FirmwareVersion  string
	BatteryStatus    *int
	ConnectionStatus string
	LastLockEvent    LockEvent
}

// LockEvent is the most recent lock/unlock event seen by the cloud.
type LockEvent struct {
	// EventType is empty when the lock has never reported an event.
	EventType string
	EventTime *time.Time
}

// ModelName is the first four characters of the serial number, or the
// whole serial when it is shorter.
func (l Lock) ModelName() string {
	runes := []rune(l.SerialNumber)
	if len(runes) < modelNameLength {
		return l.SerialNumber
	}
	return string(runes[:modelNameLength])
}

// Connected reports whether the lock can currently accept commands.
// A busy lock is still connected.
func (l Lock) Connected() bool {
	return l.ConnectionStatus == ConnectionConnected || l.ConnectionStatus == ConnectionBusy
}

// lockWire is the JSON shape of a lock element in GET /v1/locks.
type lockWire struct {
	ID               *string `json:"id"`
	Description      string  `json:"description"`
	SerialNumber     string  `json:"serialNumber"`
	FirmwareVersion  string  `json:"firmwareVersion"`
	BatteryStatus    *int    `json:"batteryStatus"`
	ConnectionStatus string  `json:"connectionStatus"`
	LastLockEvent    *struct {
		EventType *string `json:"eventType"`
		EventTime *string `json:"eventTime"`
		// Older API revisions used this name for the event timestamp.
		LastLockEventDate *string `json:"lastLockEventDate"`
	} `json:"lastLockEvent"`
}

// ParseLock decodes one lock element. Absent optional fields stay absent
// and an unparseable event time is treated as absent; only a missing id
// is an error.
func ParseLock(raw json.RawMessage) (Lock, error) {
	var w lockWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Lock{}, fmt.Errorf("%w: lock: %w", ErrMalformedResponse, err)
	}
	if w.ID == nil || *w.ID == "" {
		return Lock{}, fmt.Errorf("%w: lock without id", ErrMalformedResponse)
	}

	lock := Lock{
		ID:               *w.ID,
		Description:      w.Description,
		SerialNumber:     w.SerialNumber,
		FirmwareVersion:  w.FirmwareVersion,
		BatteryStatus:    w.BatteryStatus,
		ConnectionStatus: w.ConnectionStatus,
	}
	if lock.ConnectionStatus == "" {
		lock.ConnectionStatus = ConnectionUnknown
	}

	if ev := w.LastLockEvent; ev != nil {
		if ev.EventType != nil {
			lock.LastLockEvent.EventType = *ev.EventType
		}
		raw := ev.EventTime
		if raw == nil {
			raw = ev.LastLockEventDate
		}
		if raw != nil {
			lock.LastLockEvent.EventTime = parseEventTime(*raw)
		}
	}

	return lock, nil
}

// parseEventTime accepts RFC 3339 with or without fractional seconds.
func parseEventTime(s string) *time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ListLocks fetches every lock visible to the API key, in API order.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - apiKey: Issued Glue Home API key
//
// Returns:
//   - []Lock: One snapshot per element of the response array
//   - error: Transport errors unchanged, or ErrMalformedResponse
func (c *Client) ListLocks(ctx context.Context, apiKey string) ([]Lock, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/v1/locks", APIKeyAuth(apiKey), nil)
	if err != nil {
		return nil, err
	}

	var elements []json.RawMessage
	if err := resp.Decode(&elements); err != nil {
		return nil, err
	}

	locks := make([]Lock, 0, len(elements))
	for i, raw := range elements {
		lock, err := ParseLock(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		locks = append(locks, lock)
	}

	return locks, nil
}
