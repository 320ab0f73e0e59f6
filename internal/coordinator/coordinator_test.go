package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newQueue(t *testing.T, resources ...string) *queue.Queue {
	t.Helper()
	ctx := context.Background()
	q, err := queue.Open(ctx, medium.NewMemory(), queue.WithClock(testutil.NewManualClock(1000)))
	require.NoError(t, err)
	for _, r := range resources {
		_, err := q.Enqueue(ctx, queue.VerbCreate, r, nil)
		require.NoError(t, err)
	}
	return q
}

// countingTransport records deliveries and can be made to fail or block.
type countingTransport struct {
	mu        sync.Mutex
	delivered []string
	fail      bool
	gate      chan struct{}
	entered   chan struct{}
}

func (ct *countingTransport) Deliver(ctx context.Context, op queue.Operation) error {
	if ct.entered != nil {
		select {
		case ct.entered <- struct{}{}:
		default:
		}
	}
	if ct.gate != nil {
		select {
		case <-ct.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.fail {
		return errors.New("remote unavailable")
	}
	ct.delivered = append(ct.delivered, op.Resource)
	return nil
}

func (ct *countingTransport) resources() []string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return append([]string(nil), ct.delivered...)
}

func (ct *countingTransport) count() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.delivered)
}

func TestSync_Drains(t *testing.T) {
	q := newQueue(t, "encounters", "parties")
	tr := &countingTransport{}
	clk := testutil.NewManualClock(5000)
	c := New(q, tr, WithClock(clk))

	n, ran := c.Sync(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"encounters", "parties"}, tr.resources())

	st := c.Status()
	assert.True(t, st.Online)
	assert.False(t, st.Syncing)
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, int64(5000), st.LastSyncAt)
	assert.Equal(t, 2, st.LastProcessed)
	assert.Empty(t, st.LastError)
}

func TestSync_OfflineIsNoop(t *testing.T) {
	q := newQueue(t, "encounters")
	tr := &countingTransport{}
	c := New(q, tr, WithConnectivity(NewSwitch(false)))

	_, ran := c.Sync(context.Background())
	assert.False(t, ran)
	assert.Equal(t, 0, tr.count())

	st := c.Status()
	assert.False(t, st.Online)
	assert.Equal(t, 1, st.Pending)
	assert.Zero(t, st.LastSyncAt)
}

func TestSync_TransportFailureNotSurfaced(t *testing.T) {
	q := newQueue(t, "encounters", "parties")
	c := New(q, &countingTransport{fail: true})

	n, ran := c.Sync(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 0, n)

	st := c.Status()
	assert.Equal(t, 2, st.Pending)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 1, q.Pending()[0].Retries)
}

func TestSync_PanicRecorded(t *testing.T) {
	q := newQueue(t, "encounters")
	c := New(q, queue.TransportFunc(func(context.Context, queue.Operation) error {
		panic("boom")
	}))

	_, ran := c.Sync(context.Background())
	assert.True(t, ran)

	st := c.Status()
	assert.False(t, st.Syncing, "returns to idle after an internal error")
	assert.Contains(t, st.LastError, "boom")
	assert.NotZero(t, st.LastSyncAt)
}

func TestSync_SingleFlight(t *testing.T) {
	q := newQueue(t, "encounters")
	tr := &countingTransport{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(q, tr)

	done := make(chan int)
	go func() {
		n, _ := c.Sync(context.Background())
		done <- n
	}()

	<-tr.entered
	assert.True(t, c.Status().Syncing)

	_, ran := c.Sync(context.Background())
	assert.False(t, ran, "second trigger while syncing is ignored")

	close(tr.gate)
	assert.Equal(t, 1, <-done)
	assert.False(t, c.Status().Syncing)
}

func TestStart_TickerDrains(t *testing.T) {
	q := newQueue(t, "encounters", "parties", "characters")
	tr := &countingTransport{}
	c := New(q, tr, WithInterval(10*time.Millisecond))

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
	assert.Equal(t, []string{"encounters", "parties", "characters"}, tr.resources())
}

func TestStart_Idempotent(t *testing.T) {
	c := New(newQueue(t), &countingTransport{}, WithInterval(time.Hour))
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}

func TestConnectivityRestoredTriggersSync(t *testing.T) {
	q := newQueue(t, "encounters")
	sw := NewSwitch(false)
	tr := &countingTransport{}
	c := New(q, tr, WithInterval(time.Hour), WithConnectivity(sw))

	c.Start()
	defer c.Stop()

	assert.False(t, c.Status().Online)
	sw.Set(true)

	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
	assert.True(t, c.Status().Online)
}

func TestConnectivityLostDoesNotCancelPass(t *testing.T) {
	q := newQueue(t, "encounters")
	sw := NewSwitch(true)
	tr := &countingTransport{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(q, tr, WithInterval(time.Hour), WithConnectivity(sw))

	c.Start()
	defer c.Stop()

	c.Foreground()
	<-tr.entered

	sw.Set(false)
	require.Eventually(t, func() bool { return !c.Status().Online }, waitFor, tick)

	close(tr.gate)
	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
}

func TestVisibilityTriggersSync(t *testing.T) {
	q := newQueue(t, "encounters")
	visible := make(chan struct{}, 1)
	c := New(q, &countingTransport{}, WithInterval(time.Hour), WithVisibility(visible))

	c.Start()
	defer c.Stop()

	visible <- struct{}{}
	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
}

func TestForegroundWhenStoppedIsNoop(t *testing.T) {
	q := newQueue(t, "encounters")
	tr := &countingTransport{}
	c := New(q, tr)

	c.Foreground()
	c.SetOnline(false)
	c.SetOnline(true)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, tr.count())
	assert.Equal(t, 1, q.Len())
}

func TestStop_CancelsInFlightPass(t *testing.T) {
	q := newQueue(t, "encounters")
	tr := &countingTransport{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(q, tr, WithInterval(time.Hour))

	c.Start()
	c.Foreground()
	<-tr.entered

	c.Stop()
	st := c.Status()
	assert.False(t, st.Syncing)
	assert.Empty(t, st.LastError, "an interrupted pass is not a failure")
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 0, q.Pending()[0].Retries)

	// Restart picks the queue back up.
	close(tr.gate)
	c.Start()
	defer c.Stop()
	c.Foreground()
	require.Eventually(t, func() bool { return q.Len() == 0 }, waitFor, tick)
}

// stuckTransport blocks until released and ignores cancellation.
type stuckTransport struct {
	release chan struct{}
	entered chan struct{}
}

func (st *stuckTransport) Deliver(context.Context, queue.Operation) error {
	st.entered <- struct{}{}
	<-st.release
	return nil
}

func TestStop_ReturnsWhenTransportIgnoresCancel(t *testing.T) {
	q := newQueue(t, "encounters")
	tr := &stuckTransport{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(q, tr, WithInterval(time.Hour), WithStopTimeout(20*time.Millisecond))

	c.Start()
	c.Foreground()
	<-tr.entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop blocked on a transport that ignores cancellation")
	}
	assert.True(t, c.Status().Syncing, "the stuck pass still holds the sync slot")

	// A fresh loop can be installed while the old pass is stuck.
	c.Start()
	c.Foreground()
	_, ran := c.Sync(context.Background())
	assert.False(t, ran)

	close(tr.release)
	require.Eventually(t, func() bool { return !c.Status().Syncing }, waitFor, tick)
	assert.Equal(t, 0, q.Len())

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("second Stop blocked")
	}
}

type recordingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
	online   atomic.Int32
}

func (r *recordingObserver) PassStarted() { r.started.Add(1) }
func (r *recordingObserver) PassFinished(int, int, time.Duration, error) {
	r.finished.Add(1)
}
func (r *recordingObserver) OnlineChanged(bool) { r.online.Add(1) }

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	c := New(newQueue(t, "encounters"), &countingTransport{}, WithObserver(obs))

	c.Sync(context.Background())
	c.SetOnline(false)
	c.SetOnline(false)

	assert.Equal(t, int32(1), obs.started.Load())
	assert.Equal(t, int32(1), obs.finished.Load())
	assert.Equal(t, int32(1), obs.online.Load(), "only edges are reported")
}

func TestSwitch(t *testing.T) {
	sw := NewSwitch(false)
	assert.False(t, sw.Online())

	sw.Set(false)
	select {
	case <-sw.Changes():
		t.Fatal("no edge expected")
	default:
	}

	sw.Set(true)
	sw.Set(false)
	assert.False(t, <-sw.Changes(), "slow reader sees the latest edge")
	assert.False(t, sw.Online())
}
