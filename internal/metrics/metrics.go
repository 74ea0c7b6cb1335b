// Package metrics exposes the bridge's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

const namespace = "gluehome"

// Metrics holds every collector the bridge updates.
type Metrics struct {
	BuildInfo        *prometheus.GaugeVec
	RefreshesTotal   *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	LocksKnown       prometheus.Gauge
	LockConnected    *prometheus.GaugeVec
	LockBatteryLevel *prometheus.GaugeVec
	OperationsTotal  *prometheus.CounterVec
	OperationPolls   prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, version string) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the Glue Home bridge.",
		}, []string{"version"}),
		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_refreshes_total",
			Help:      "Lock directory refreshes by result.",
		}, []string{"result"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directory_refresh_duration_seconds",
			Help:      "Duration of lock directory refreshes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		LocksKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks",
			Help:      "Locks in the current directory.",
		}),
		LockConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lock_connected",
			Help:      "1 if the lock is connected or busy, else 0.",
		}, []string{"lock_id"}),
		LockBatteryLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lock_battery_level_percent",
			Help:      "Last reported battery level.",
		}, []string{"lock_id"}),
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_operations_total",
			Help:      "Finished lock commands by action and outcome.",
		}, []string{"action", "outcome"}),
		OperationPolls: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_operation_polls",
			Help:      "Status polls per lock command.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 30},
		}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// ObserveRefresh matches coordinator.Options.OnRefresh.
func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(d.Seconds())
}

// ObserveDirectory updates the per-lock gauges after a successful refresh.
// Locks that left the directory drop out of the gauges.
func (m *Metrics) ObserveDirectory(u coordinator.Update) {
	if u.Err != nil || u.Directory == nil {
		return
	}

	m.LocksKnown.Set(float64(len(u.Directory.Locks)))
	m.LockConnected.Reset()
	m.LockBatteryLevel.Reset()
	for _, lock := range u.Directory.Locks {
		connected := 0.0
		if lock.Connected() {
			connected = 1
		}
		m.LockConnected.WithLabelValues(lock.ID).Set(connected)
		if lock.BatteryStatus != nil {
			m.LockBatteryLevel.WithLabelValues(lock.ID).Set(float64(*lock.BatteryStatus))
		}
	}
}

// ObserveOperation matches operation.Observer.
func (m *Metrics) ObserveOperation(rec operation.Record) {
	m.OperationsTotal.WithLabelValues(rec.Action, rec.Outcome).Inc()
	if rec.Attempts > 0 {
		m.OperationPolls.Observe(float64(rec.Attempts))
	}
}
