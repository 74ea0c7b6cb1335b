package gluehome

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthReporter publishes the bridge health message periodically.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	clock     clockwork.Clock
	publisher HealthPublisher
	stats     func() BridgeStatistics

	mu           sync.RWMutex
	lockCount    int
	lastRefresh  *time.Time
	upstreamErr  error
	upstreamAuth bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Interval defaults to DefaultHealthInterval.
	Interval time.Duration

	Publisher HealthPublisher

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Stats supplies the counters included in every message. Optional.
	Stats func() BridgeStatistics
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: clock.Now(),
		interval:  interval,
		clock:     clock,
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// RecordRefresh records the outcome of a directory refresh.
//
// Parameters:
//   - lockCount: Locks in the current directory
//   - err: The refresh error, nil on success
//   - authFailed: Whether the credential was rejected
func (h *HealthReporter) RecordRefresh(lockCount int, err error, authFailed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lockCount = lockCount
	h.upstreamErr = err
	h.upstreamAuth = authFailed
	if err == nil {
		now := h.clock.Now().UTC()
		h.lastRefresh = &now
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.Chan():
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case h.upstreamAuth:
		return HealthUnhealthy, "Glue Home rejected the API key"
	case h.upstreamErr != nil:
		return HealthDegraded, fmt.Sprintf("last refresh failed: %v", h.upstreamErr)
	case h.lastRefresh == nil:
		return HealthDegraded, "waiting for first refresh"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	now := h.clock.Now()
	msg := HealthMessage{
		Bridge:        BridgeID,
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Reason:        reason,
	}

	h.mu.RLock()
	msg.LocksManaged = h.lockCount
	msg.LastRefresh = h.lastRefresh
	h.mu.RUnlock()

	if h.stats != nil {
		stats := h.stats()
		msg.Statistics = &stats
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
