package gluehome

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
)

// BridgeID identifies this bridge in health and discovery messages.
const BridgeID = "gluehome"

// Protocol is the protocol identifier carried by state and ack messages.
const Protocol = "gluehome"

// CommandMessage is sent from Core to the bridge to lock or unlock.
// Topic: graylogic/command/gluehome/{lockID}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgements.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the lock ID. The topic is authoritative when they differ.
	DeviceID string `json:"device_id"`

	// Command is "lock" or "unlock".
	Command string `json:"command"`

	// Source indicates where the command originated ("api", "automation", "scene").
	Source string `json:"source,omitempty"`

	UserID string `json:"user_id,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted is sent as soon as the command is handed to the cloud.
	AckAccepted AckStatus = "accepted"

	// AckCompleted means the cloud settled the operation.
	AckCompleted AckStatus = "completed"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the operation was still pending when the poll budget ran out.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/gluehome/{lockID}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// OperationID is the cloud operation, once one was created.
	OperationID string `json:"operation_id,omitempty"`

	// Attempts is the number of status polls made.
	Attempts int `json:"attempts,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeOperationFailed = "OPERATION_FAILED"
	ErrCodeUpstreamError   = "UPSTREAM_ERROR"
	ErrCodeNotConfigured   = "NOT_CONFIGURED"
	ErrCodeInvalidCommand  = "INVALID_COMMAND"
	ErrCodeBridgeStopping  = "BRIDGE_STOPPING"
)

// StateMessage carries one entity's rendering.
// Topic: graylogic/state/gluehome/{entityUniqueID}
// QoS: 1, Retained: Yes
type StateMessage struct {
	entity.State
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthOffline is only ever sent by the broker, as the Last Will.
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/gluehome
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// LocksManaged is the size of the current lock directory.
	LocksManaged int `json:"locks_managed"`

	// LastRefresh is when the directory was last fetched successfully.
	LastRefresh *time.Time `json:"last_refresh,omitempty"`

	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded/unhealthy).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
}

// DiscoveryMessage announces the locks behind the account.
// Topic: graylogic/discovery/gluehome
type DiscoveryMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Devices   []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice describes one lock and the entities published for it.
type DiscoveredDevice struct {
	Protocol      string   `json:"protocol"`
	Address       string   `json:"address"`
	Type          string   `json:"type"`
	Capabilities  []string `json:"capabilities"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Product       string   `json:"product,omitempty"`
	SWVersion     string   `json:"sw_version,omitempty"`
	SerialNumber  string   `json:"serial_number,omitempty"`
	SuggestedName string   `json:"suggested_name,omitempty"`
	Entities      []string `json:"entities"`
}

// lockCapabilities is advertised for every lock.
var lockCapabilities = []string{"lock", "unlock", "battery_level", "last_lock_event"}

// NewAckMessage creates an acknowledgement for cmd.
func NewAckMessage(cmd CommandMessage, lockID string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  lockID,
		Status:    status,
		Protocol:  Protocol,
	}
}

// NewAckError creates a failed acknowledgement for cmd.
func NewAckError(cmd CommandMessage, lockID, code, message string) AckMessage {
	ack := NewAckMessage(cmd, lockID, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage wraps an entity rendering for publishing.
func NewStateMessage(s entity.State) StateMessage {
	return StateMessage{
		State:     s,
		Timestamp: time.Now().UTC(),
		Protocol:  Protocol,
	}
}

// NewDiscoveredDevice describes a lock and its entity IDs.
func NewDiscoveredDevice(info entity.DeviceInfo, entityIDs []string) DiscoveredDevice {
	return DiscoveredDevice{
		Protocol:      Protocol,
		Address:       info.Identifier,
		Type:          entity.KindLock,
		Capabilities:  lockCapabilities,
		Manufacturer:  info.Manufacturer,
		Product:       info.Model,
		SWVersion:     info.SWVersion,
		SerialNumber:  info.SerialNumber,
		SuggestedName: info.Name,
		Entities:      entityIDs,
	}
}

// ParseCommandMessage decodes a command payload.
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	var cmd CommandMessage
	err := json.Unmarshal(payload, &cmd)
	return cmd, err
}
