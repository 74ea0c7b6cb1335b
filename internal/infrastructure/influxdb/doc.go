// Package influxdb writes lock telemetry to InfluxDB v2.
//
// After every directory refresh the bridge writes one gluehome_lock point
// per lock (battery, connectivity, lock state), and one gluehome_operation
// point per finished lock command. Writes are batched and asynchronous;
// failures surface through the SetOnError callback.
//
// InfluxDB is optional: Connect returns ErrDisabled when influxdb.enabled
// is false and the bridge runs without telemetry.
package influxdb
