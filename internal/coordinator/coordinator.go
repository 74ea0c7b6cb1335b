package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
)

// Defaults for the refresh policy.
const (
	DefaultInterval     = 30 * time.Second
	DefaultTimeout      = 20 * time.Second
	DefaultSetupTimeout = 2 * time.Minute
)

// Fetcher lists every lock visible to an API key.
type Fetcher interface {
	ListLocks(ctx context.Context, apiKey string) ([]cloud.Lock, error)
}

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Directory is every lock as of one successful fetch. It is never
// modified after it is published.
type Directory struct {
	Locks     []cloud.Lock
	FetchedAt time.Time
}

// Lock finds a lock by ID.
func (d *Directory) Lock(id string) (cloud.Lock, bool) {
	if d == nil {
		return cloud.Lock{}, false
	}
	for _, l := range d.Locks {
		if l.ID == id {
			return l, true
		}
	}
	return cloud.Lock{}, false
}

// IDs returns the lock IDs in directory order.
func (d *Directory) IDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, len(d.Locks))
	for i, l := range d.Locks {
		ids[i] = l.ID
	}
	return ids
}

// Update is delivered to subscribers after every refresh attempt.
type Update struct {
	// Directory is the current directory. After a failed refresh it is
	// the previous one (possibly nil before the first success).
	Directory *Directory
	Err       error
	// Fatal is set when the credential was rejected.
	Fatal bool
}

// Options configures a Coordinator.
type Options struct {
	Fetcher Fetcher
	APIKey  string

	// Interval defaults to DefaultInterval.
	Interval time.Duration
	// Timeout bounds one refresh. Defaults to DefaultTimeout.
	Timeout time.Duration
	// SetupTimeout bounds the retries of FirstRefresh. Defaults to DefaultSetupTimeout.
	SetupTimeout time.Duration

	// Clock defaults to the real clock.
	Clock  clockwork.Clock
	Logger Logger

	// OnRefresh is called after every refresh attempt with its duration.
	OnRefresh func(d time.Duration, err error)
}

// Coordinator periodically refreshes the lock directory.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Coordinator struct {
	fetcher      Fetcher
	apiKey       string
	interval     time.Duration
	timeout      time.Duration
	setupTimeout time.Duration
	clock        clockwork.Clock
	logger       Logger
	onRefresh    func(time.Duration, error)

	dir     atomic.Pointer[Directory]
	lastErr atomic.Pointer[error]

	// refreshMu serialises fetches.
	refreshMu sync.Mutex

	subsMu sync.Mutex
	subs   map[uint64]func(Update)
	nextID uint64

	refreshCh chan struct{}
}

// New creates a Coordinator. It does not fetch anything until Refresh,
// FirstRefresh or Run is called.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		fetcher:      opts.Fetcher,
		apiKey:       opts.APIKey,
		interval:     opts.Interval,
		timeout:      opts.Timeout,
		setupTimeout: opts.SetupTimeout,
		clock:        opts.Clock,
		logger:       opts.Logger,
		onRefresh:    opts.OnRefresh,
		subs:         make(map[uint64]func(Update)),
		refreshCh:    make(chan struct{}, 1),
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.setupTimeout <= 0 {
		c.setupTimeout = DefaultSetupTimeout
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c
}

// Current returns the latest directory, or nil before the first success.
func (c *Coordinator) Current() *Directory {
	return c.dir.Load()
}

// Lock looks up a lock in the current directory.
func (c *Coordinator) Lock(id string) (cloud.Lock, bool) {
	return c.Current().Lock(id)
}

// LastError returns the error of the most recent refresh, nil if it succeeded.
func (c *Coordinator) LastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Refresh fetches the directory once.
//
// On success the directory is swapped in and subscribers are notified. On
// failure the previous directory stays current and subscribers receive the
// error; the returned error wraps ErrUpdateFailed and the cloud error.
func (c *Coordinator) Refresh(ctx context.Context) (*Directory, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	locks, err := c.fetcher.ListLocks(ctx, c.apiKey)
	if c.onRefresh != nil {
		c.onRefresh(c.clock.Since(start), err)
	}

	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		c.lastErr.Store(&wrapped)
		fatal := errors.Is(err, cloud.ErrInvalidAuth)
		if fatal {
			c.logError("lock directory refresh rejected, credential is invalid", "error", err)
		} else {
			c.logWarn("lock directory refresh failed", "error", err)
		}
		c.notify(Update{Directory: c.Current(), Err: wrapped, Fatal: fatal})
		return nil, wrapped
	}

	dir := &Directory{Locks: locks, FetchedAt: c.clock.Now()}
	c.dir.Store(dir)
	c.lastErr.Store(nil)
	c.logDebug("lock directory refreshed", "locks", len(locks))
	c.notify(Update{Directory: dir})

	return dir, nil
}

// FirstRefresh performs the startup refresh. Invalid credentials fail
// immediately; other failures are retried with exponential backoff until
// the setup timeout, after which ErrNotReady is returned.
func (c *Coordinator) FirstRefresh(ctx context.Context) (*Directory, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = c.setupTimeout
	bo.Clock = c.clock
	bo.Reset()

	for {
		dir, err := c.Refresh(ctx)
		if err == nil {
			c.logInfo("found locks", "count", len(dir.Locks))
			return dir, nil
		}
		if errors.Is(err, cloud.ErrInvalidAuth) {
			return nil, err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		c.logInfo("retrying lock directory refresh", "in", wait)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-c.clock.After(wait):
		}
	}
}

// Subscribe registers fn for every Update. The returned function removes
// the subscription. Periodic refreshes only run while subscribers exist.
func (c *Coordinator) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// SubscriberCount returns the number of active subscribers.
func (c *Coordinator) SubscriberCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

// RequestRefresh asks Run for a prompt refresh without blocking. Requests
// made while one is already queued are coalesced. The periodic schedule
// is not affected.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Run refreshes on every tick (while subscribed) and on every
// RequestRefresh until ctx is cancelled or the credential is rejected.
//
// Returns:
//   - error: nil on cancellation, the refresh error on invalid credentials
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := c.tick(ctx); err != nil {
				return err
			}
		case <-c.refreshCh:
			if err := c.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

// tick is the periodic refresh; it is skipped while nobody is subscribed.
func (c *Coordinator) tick(ctx context.Context) error {
	if c.SubscriberCount() == 0 {
		return nil
	}
	return c.refresh(ctx)
}

// refresh runs Refresh and returns only errors that must stop Run.
func (c *Coordinator) refresh(ctx context.Context) error {
	if _, err := c.Refresh(ctx); errors.Is(err, cloud.ErrInvalidAuth) {
		return err
	}
	return nil
}

func (c *Coordinator) notify(u Update) {
	c.subsMu.Lock()
	fns := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (c *Coordinator) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Coordinator) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Coordinator) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Coordinator) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
