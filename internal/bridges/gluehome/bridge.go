package gluehome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// DefaultCommandTimeout bounds one command: the create call, 30 polls
	// one second apart and the follow-up refresh request.
	DefaultCommandTimeout = 2 * time.Minute
)

// Bridge translates between the lock directory and the MQTT bus.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt           MQTTClient
	coord          Coordinator
	entities       *entity.Set
	health         *HealthReporter
	commandTimeout time.Duration

	// knownIDs is the lock ID set last announced via discovery.
	knownIDs  []string
	announced bool
	idsMu     sync.Mutex

	unsubscribe func()

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64

	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopMu    sync.Mutex
	stopped   bool
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Coordinator is the lock directory the bridge publishes from.
type Coordinator interface {
	Subscribe(fn func(coordinator.Update)) (unsubscribe func())
	Current() *coordinator.Directory
}

// Logger is the logging surface of the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	MQTTClient  MQTTClient
	Coordinator Coordinator
	Entities    *entity.Set

	// Version is reported in health messages.
	Version string

	// HealthInterval defaults to DefaultHealthInterval.
	HealthInterval time.Duration

	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration

	// Health replaces the default reporter. Used by tests to drive the clock.
	Health *HealthReporter

	Logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
//
// Parameters:
//   - opts: Bridge dependencies; MQTTClient, Coordinator and Entities are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required dependency is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMissingMQTTClient
	}
	if opts.Coordinator == nil {
		return nil, ErrMissingCoordinator
	}
	if opts.Entities == nil {
		return nil, ErrMissingEntities
	}

	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:           opts.MQTTClient,
		coord:          opts.Coordinator,
		entities:       opts.Entities,
		commandTimeout: timeout,
		ctx:            ctx,
		ctxCancel:      cancel,
		logger:         opts.Logger,
	}

	b.health = opts.Health
	if b.health == nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			Version:   opts.Version,
			Interval:  opts.HealthInterval,
			Publisher: opts.MQTTClient,
		})
	}
	b.health.stats = b.statistics
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to commands and directory updates and begins health reporting.
// If the coordinator already holds a directory it is published immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.entities.OnTransition(b.publishLockState)

	commandTopic := mqtt.Topics{}.CommandSubscribe()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.unsubscribe = b.coord.Subscribe(b.handleUpdate)
	if dir := b.coord.Current(); dir != nil {
		b.handleUpdate(coordinator.Update{Directory: dir})
	}

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge started", "bridge_id", BridgeID)
	return nil
}

// Stop cancels in-flight commands, waits for them and publishes "stopping".
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		b.ctxCancel()
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.wg.Wait()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// handleUpdate publishes entity states after every successful refresh.
func (b *Bridge) handleUpdate(u coordinator.Update) {
	count := 0
	if u.Directory != nil {
		count = len(u.Directory.Locks)
	}
	b.health.RecordRefresh(count, u.Err, u.Fatal)

	if u.Err != nil {
		b.logDebug("skipping state publish after failed refresh", "error", u.Err)
		return
	}

	ids := u.Directory.IDs()
	removed, changed := b.trackIDs(ids)

	// Removed locks publish once more so their entities go unavailable.
	for _, e := range b.entities.ForLocks(slices.Concat(ids, removed)) {
		b.publishState(e)
	}

	if changed {
		b.publishDiscovery(u.Directory)
	}
}

// trackIDs records the current ID set and reports what disappeared and
// whether discovery is due.
func (b *Bridge) trackIDs(ids []string) (removed []string, changed bool) {
	b.idsMu.Lock()
	defer b.idsMu.Unlock()

	for _, id := range b.knownIDs {
		if !slices.Contains(ids, id) {
			removed = append(removed, id)
		}
	}
	changed = !b.announced || !slices.Equal(b.knownIDs, ids)
	b.knownIDs = ids
	b.announced = true
	return removed, changed
}

func (b *Bridge) publishState(e entity.Entity) {
	payload, err := json.Marshal(NewStateMessage(e.Snapshot()))
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.State(e.UniqueID()), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
		return
	}
	b.statesPublished.Add(1)
}

// publishLockState republishes the lock entity when it enters or leaves a transition.
func (b *Bridge) publishLockState(lockID string) {
	b.publishState(b.entities.Lock(lockID))
}

func (b *Bridge) publishDiscovery(dir *coordinator.Directory) {
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    BridgeID,
		Devices:   make([]DiscoveredDevice, 0, len(dir.Locks)),
	}
	for _, lock := range dir.Locks {
		var ids []string
		for _, e := range b.entities.ForLock(lock.ID) {
			ids = append(ids, e.UniqueID())
		}
		msg.Devices = append(msg.Devices, NewDiscoveredDevice(entity.NewDeviceInfo(lock), ids))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Discovery(), payload, 1, false); err != nil {
		b.logError("failed to publish discovery", err)
		return
	}
	b.logInfo("published discovery", "locks", len(msg.Devices))
}

// handleMQTTMessage routes incoming MQTT messages.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(topic, payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand validates a command, acks it and runs it in the background.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	lockID, ok := mqtt.Topics{}.LockIDFromCommand(topic)
	if !ok {
		b.logError("invalid command topic", fmt.Errorf("topic: %s", topic))
		return
	}

	cmd, err := ParseCommandMessage(payload)
	if err != nil {
		b.logError("failed to parse command", err)
		return
	}
	b.commandsReceived.Add(1)

	b.logInfo("received command",
		"command_id", cmd.ID,
		"lock_id", lockID,
		"command", cmd.Command)

	if !operation.ValidAction(cmd.Command) {
		b.publishAckError(cmd, lockID, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command %q", cmd.Command))
		return
	}
	if _, ok := b.coord.Current().Lock(lockID); !ok {
		b.publishAckError(cmd, lockID, ErrCodeNotConfigured,
			fmt.Sprintf("lock %s not found", lockID))
		return
	}

	// wg.Add must not race with the Wait in Stop.
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		b.publishAckError(cmd, lockID, ErrCodeBridgeStopping, "bridge is stopping")
		return
	}
	b.wg.Add(1)
	b.stopMu.Unlock()

	b.publishAck(NewAckMessage(cmd, lockID, AckAccepted))
	go func() {
		defer b.wg.Done()
		b.executeCommand(cmd, lockID)
	}()
}

// executeCommand drives one lock operation and publishes the final ack.
func (b *Bridge) executeCommand(cmd CommandMessage, lockID string) {
	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	res, err := b.entities.Lock(lockID).Execute(ctx, cmd.Command)
	if err != nil {
		code := errorCode(err)
		b.publishAckError(cmd, lockID, code, err.Error())
		return
	}

	status := AckCompleted
	if res.Outcome == operation.Unresolved {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, lockID, status)
	ack.OperationID = res.Operation.ID
	ack.Attempts = res.Attempts
	b.publishAck(ack)
}

// errorCode maps a command error to its ack error code.
func errorCode(err error) string {
	switch {
	case operation.IsFailed(err):
		return ErrCodeOperationFailed
	case errors.Is(err, entity.ErrLockNotFound):
		return ErrCodeNotConfigured
	case errors.Is(err, operation.ErrInvalidAction):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeUpstreamError
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Ack(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) publishAckError(cmd CommandMessage, lockID, code, message string) {
	b.commandsFailed.Add(1)
	b.publishAck(NewAckError(cmd, lockID, code, message))
	b.logError("command failed", fmt.Errorf("code=%s message=%s", code, message))
}

func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		StatesPublished:  b.statesPublished.Load(),
	}
}

// BridgeMetrics is the bridge summary exposed by the API.
type BridgeMetrics struct {
	Connected bool
	BridgeStatistics
}

// GetMetrics returns the current bridge counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		Connected:        b.mqtt.IsConnected(),
		BridgeStatistics: b.statistics(),
	}
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
