package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLock      = "gluehome_lock"
	MeasurementOperation = "gluehome_operation"
)

// LockSample is one lock's telemetry at a refresh.
type LockSample struct {
	LockID           string
	Description      string
	Model            string
	BatteryLevel     *int
	Connected        bool
	ConnectionStatus string
	State            string
}

// OperationSample is one finished lock command.
type OperationSample struct {
	LockID   string
	Action   string
	Outcome  string
	Attempts int
	Duration time.Duration
}

// WriteLockSample queues a gluehome_lock point. The battery field is
// omitted when the cloud did not report it.
func (c *Client) WriteLockSample(s LockSample, at time.Time) {
	fields := map[string]any{
		"connected":         s.Connected,
		"connection_status": s.ConnectionStatus,
		"state":             s.State,
	}
	if s.BatteryLevel != nil {
		fields["battery_level"] = *s.BatteryLevel
	}

	c.writePoint(MeasurementLock, map[string]string{
		"lock_id":     s.LockID,
		"description": s.Description,
		"model":       s.Model,
	}, fields, at)
}

// WriteOperationSample queues a gluehome_operation point.
func (c *Client) WriteOperationSample(s OperationSample, at time.Time) {
	c.writePoint(MeasurementOperation, map[string]string{
		"lock_id": s.LockID,
		"action":  s.Action,
		"outcome": s.Outcome,
	}, map[string]any{
		"attempts":    s.Attempts,
		"duration_ms": s.Duration.Milliseconds(),
	}, at)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	// Empty tag values are invalid line protocol.
	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
