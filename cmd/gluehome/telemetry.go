package main

import (
	"time"

	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// sampleWriter is the part of the InfluxDB client the telemetry hooks use.
type sampleWriter interface {
	WriteLockSample(s influxdb.LockSample, at time.Time)
	WriteOperationSample(s influxdb.OperationSample, at time.Time)
}

// lockTelemetry returns a coordinator subscriber that writes one sample per
// lock after every successful refresh.
func lockTelemetry(w sampleWriter, entities *entity.Set) func(coordinator.Update) {
	return func(u coordinator.Update) {
		if u.Err != nil {
			return
		}
		for _, s := range lockSamples(u.Directory, entities) {
			w.WriteLockSample(s, u.Directory.FetchedAt)
		}
	}
}

func lockSamples(dir *coordinator.Directory, entities *entity.Set) []influxdb.LockSample {
	samples := make([]influxdb.LockSample, 0, len(dir.Locks))
	for _, lock := range dir.Locks {
		samples = append(samples, influxdb.LockSample{
			LockID:           lock.ID,
			Description:      lock.Description,
			Model:            lock.ModelName(),
			BatteryLevel:     lock.BatteryStatus,
			Connected:        lock.Connected(),
			ConnectionStatus: lock.ConnectionStatus,
			State:            entities.Lock(lock.ID).State(),
		})
	}
	return samples
}

// operationTelemetry returns an operation observer writing one sample per
// finished command.
func operationTelemetry(w sampleWriter) operation.Observer {
	return func(rec operation.Record) {
		w.WriteOperationSample(influxdb.OperationSample{
			LockID:   rec.LockID,
			Action:   rec.Action,
			Outcome:  rec.Outcome,
			Attempts: rec.Attempts,
			Duration: rec.Finished.Sub(rec.Started),
		}, rec.Finished)
	}
}
