package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/initiative/internal/clock"
	"github.com/roach88/initiative/internal/queue"
)

// DefaultInterval is the period of the background drain ticker.
const DefaultInterval = 30 * time.Second

// DefaultStopTimeout bounds how long Stop waits for an in-flight pass.
const DefaultStopTimeout = 5 * time.Second

// Drainer is the part of the operation queue the coordinator drives.
type Drainer interface {
	Process(ctx context.Context, t queue.Transport) (int, error)
	Len() int
}

// Observer receives pass and connectivity events, e.g. for metrics.
type Observer interface {
	PassStarted()
	PassFinished(processed, pending int, elapsed time.Duration, err error)
	OnlineChanged(online bool)
}

type nopObserver struct{}

func (nopObserver) PassStarted()                                {}
func (nopObserver) PassFinished(int, int, time.Duration, error) {}
func (nopObserver) OnlineChanged(bool)                          {}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	Online  bool `json:"online"`
	Syncing bool `json:"syncing"`
	Pending int  `json:"pendingCount"`

	// LastSyncAt is the epoch ms at which the last pass finished (0 = never).
	LastSyncAt int64 `json:"lastSyncAt,omitempty"`

	// LastProcessed counts operations delivered by the last pass.
	LastProcessed int `json:"lastProcessed"`

	// LastError is the error that escaped the last pass, if any.
	LastError string `json:"lastError,omitempty"`
}

// Coordinator schedules drain passes over a queue.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	q           Drainer
	t           queue.Transport
	interval    time.Duration
	stopTimeout time.Duration
	conn     Connectivity
	visible  <-chan struct{}
	clock    clock.Clock
	logger   *slog.Logger
	obs      Observer

	online  atomic.Bool
	syncing atomic.Bool

	mu            sync.Mutex
	lastSyncAt    int64
	lastProcessed int
	lastError     string
	run           *run
}

// run is one Start/Stop generation. Passes kicked during a generation are
// tracked on it so that Stop never waits on a later generation's work.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	passes   sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the ticker period (default DefaultInterval).
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits for an in-flight pass to
// return after cancelling it (default DefaultStopTimeout). A pass still
// running after that keeps the coordinator marked as syncing until its
// transport call returns.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithConnectivity sets the reachability source. Without one the
// coordinator assumes it is online until SetOnline(false).
func WithConnectivity(conn Connectivity) Option {
	return func(c *Coordinator) {
		c.conn = conn
	}
}

// WithVisibility sets the channel on which foreground edges arrive.
func WithVisibility(ch <-chan struct{}) Option {
	return func(c *Coordinator) {
		c.visible = ch
	}
}

// WithClock sets the clock for LastSyncAt.
func WithClock(cl clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = cl
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithObserver registers an observer for pass and connectivity events.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.obs = o
	}
}

// New creates an idle, stopped coordinator draining q through t.
func New(q Drainer, t queue.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		q:           q,
		t:           t,
		interval:    DefaultInterval,
		stopTimeout: DefaultStopTimeout,
		clock:       clock.System{},
		logger:      slog.Default(),
		obs:         nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}

	online := true
	if c.conn != nil {
		online = c.conn.Online()
	}
	c.online.Store(online)
	return c
}

// Sync runs one drain pass now, unless a pass is already running or the
// coordinator believes it is offline. It reports how many operations were
// delivered and whether a pass ran. Errors escaping the pass are logged and
// kept in Status, never returned.
func (c *Coordinator) Sync(ctx context.Context) (processed int, ran bool) {
	if !c.online.Load() {
		c.logger.Debug("sync skipped: offline")
		return 0, false
	}
	if !c.syncing.CompareAndSwap(false, true) {
		c.logger.Debug("sync skipped: pass in progress")
		return 0, false
	}
	defer c.syncing.Store(false)

	c.obs.PassStarted()
	start := time.Now()

	processed, err := c.drain(ctx)
	elapsed := time.Since(start)
	pending := c.q.Len()

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		c.logger.Info("sync pass interrupted", "processed", processed, "pending", pending)
		err = nil
	} else if err != nil {
		c.logger.Error("sync pass failed", "error", err, "processed", processed, "pending", pending)
	} else {
		c.logger.Info("sync pass complete", "processed", processed, "pending", pending, "elapsed", elapsed)
	}

	c.mu.Lock()
	c.lastSyncAt = c.clock.NowMillis()
	c.lastProcessed = processed
	c.lastError = ""
	if err != nil {
		c.lastError = err.Error()
	}
	c.mu.Unlock()

	c.obs.PassFinished(processed, pending, elapsed, err)
	return processed, true
}

// drain calls Process, turning a panic in host transport code into an error.
func (c *Coordinator) drain(ctx context.Context) (processed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return c.q.Process(ctx, c.t)
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Online:        c.online.Load(),
		Syncing:       c.syncing.Load(),
		Pending:       c.q.Len(),
		LastSyncAt:    c.lastSyncAt,
		LastProcessed: c.lastProcessed,
		LastError:     c.lastError,
	}
}

// SetOnline records a connectivity edge. Coming back online while started
// triggers an immediate pass; going offline never interrupts one.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if was == online {
		return
	}

	c.logger.Info("connectivity changed", "online", online)
	c.obs.OnlineChanged(online)
	if online {
		c.kick("online")
	}
}

// Foreground signals that the application became visible again. While
// started this triggers an immediate pass.
func (c *Coordinator) Foreground() {
	c.kick("foreground")
}

// Start launches the background loop. Calling Start on a running
// coordinator does nothing.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ctx: ctx, cancel: cancel, loopDone: make(chan struct{})}
	c.run = r

	go c.loop(r)

	c.logger.Info("coordinator started", "interval", c.interval)
}

// Stop cancels the loop and any in-flight pass. It waits for the loop to
// exit and for the pass to return, the latter for at most the stop timeout.
// The coordinator can be started again afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.loopDone

	passesDone := make(chan struct{})
	go func() {
		r.passes.Wait()
		close(passesDone)
	}()

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-passesDone:
		c.logger.Info("coordinator stopped")
	case <-timer.C:
		c.logger.Warn("coordinator stopped with a pass still in flight", "waited", c.stopTimeout)
	}
}

func (c *Coordinator) loop(r *run) {
	defer close(r.loopDone)
	ctx := r.ctx

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var changes <-chan bool
	if c.conn != nil {
		changes = c.conn.Changes()
		// Pick up any edge that happened before Start.
		c.SetOnline(c.conn.Online())
	}
	visible := c.visible

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.kick("tick")

		case online, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.SetOnline(online)

		case _, ok := <-visible:
			if !ok {
				visible = nil
				continue
			}
			c.kick("foreground")
		}
	}
}

// kick starts a pass in the background if the coordinator is running,
// online and idle.
func (c *Coordinator) kick(reason string) {
	if !c.online.Load() || c.syncing.Load() {
		return
	}

	c.mu.Lock()
	r := c.run
	if r == nil {
		c.mu.Unlock()
		return
	}
	r.passes.Add(1)
	c.mu.Unlock()

	c.logger.Debug("sync triggered", "reason", reason)
	go func() {
		defer r.passes.Done()
		c.Sync(r.ctx)
	}()
}
