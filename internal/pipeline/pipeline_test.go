package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/metrics"
	"codeberg.org/mutker/ecoguard/internal/pipeline"
	"codeberg.org/mutker/ecoguard/internal/render"
	"codeberg.org/mutker/ecoguard/internal/store"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const topic = "ecoguard/turbine/T-04/data"

type fakeSource struct {
	mu      sync.Mutex
	onMsg   transport.MessageHandler
	onState transport.StateHandler
	alive   atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource {
	f := &fakeSource{done: make(chan struct{})}
	f.alive.Store(true)
	return f
}

func (f *fakeSource) OnMessage(h transport.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMsg = h
}

func (f *fakeSource) OnStateChange(h transport.StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = h
}

func (f *fakeSource) Alive() bool           { return f.alive.Load() }
func (f *fakeSource) Done() <-chan struct{} { return f.done }

func (f *fakeSource) deliver(payload string) {
	f.mu.Lock()
	h := f.onMsg
	f.mu.Unlock()
	h(topic, []byte(payload))
}

func (f *fakeSource) state(st transport.State) {
	f.mu.Lock()
	h := f.onState
	f.mu.Unlock()
	h(st)
}

// teardown marks the session dead without closing Done, as seen by a
// message that was already queued when Close began.
func (f *fakeSource) teardown() { f.alive.Store(false) }

func (f *fakeSource) close() {
	f.teardown()
	f.once.Do(func() { close(f.done) })
}

type harness struct {
	store    *store.Store
	metrics  metrics.Collector
	source   *fakeSource
	pipeline *pipeline.Pipeline

	mu       sync.Mutex
	rendered []telemetry.Frame
}

func newHarness(t *testing.T, queue int) *harness {
	t.Helper()

	h := &harness{
		store:  store.New(telemetry.Placeholder(telemetry.WideBins)),
		source: newFakeSource(),
	}

	var err error
	h.metrics, err = metrics.NewService(metrics.DefaultConfig())
	require.NoError(t, err)

	trigger, err := render.NewTrigger(200, h.store.Get, func(f telemetry.Frame) {
		h.mu.Lock()
		h.rendered = append(h.rendered, f)
		h.mu.Unlock()
	})
	require.NoError(t, err)

	h.pipeline = pipeline.New(h.store, trigger, logger.New(zerolog.NewTestWriter(t)), h.metrics, pipeline.Options{QueueSize: queue})
	h.pipeline.Attach(h.source)

	return h
}

func (h *harness) run(t *testing.T) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.pipeline.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	}
}

func (h *harness) waitFor(t *testing.T, cond func(metrics.Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.metrics.Snapshot()) }, 5*time.Second, 5*time.Millisecond)
}

func (h *harness) lastRendered() (telemetry.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.rendered) == 0 {
		return telemetry.Frame{}, false
	}
	return h.rendered[len(h.rendered)-1], true
}

func payload(id string, rms float64) string {
	return fmt.Sprintf(`{"turbine_id":%q,"health_zone":%q,"rms_velocity":%v,"spectrum_peaks":[0.1,0.2]}`,
		id, telemetry.ClassifyRMS(rms), rms)
}

func TestBearingScenario(t *testing.T) {
	h := newHarness(t, 0)
	stop := h.run(t)
	defer stop()

	h.source.deliver(`{"turbine_id":"T-04","health_zone":"Danger:Bearing","rms_velocity":7.82,"spectrum_peaks":[0.1,0.2,0.3]}`)
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Accepted == 1 })

	got := h.store.Get()
	assert.Equal(t, telemetry.NewFrame("T-04", "Danger:Bearing", 7.82, []float64{0.1, 0.2, 0.3}), got)
	assert.True(t, telemetry.IsDanger(got))

	require.Eventually(t, func() bool {
		f, ok := h.lastRendered()
		return ok && f.TurbineID == "T-04"
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNonJSONLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t, 0)
	stop := h.run(t)
	defer stop()

	h.source.deliver("not json at all")
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Rejected == 1 })
	assert.Equal(t, telemetry.PlaceholderTurbineID, h.store.Get().TurbineID)
	assert.Zero(t, h.store.Version())

	h.source.deliver(payload("T-01", 1.0))
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Accepted == 1 })
	before := h.store.Get()

	h.source.deliver(`{"turbine_id":"T-02","health_zone":"x","rms_velocity":"fast","spectrum_peaks":[]}`)
	h.source.deliver("\xff\xfe")
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Rejected == 3 })

	assert.Equal(t, before, h.store.Get())
	assert.Equal(t, uint64(1), h.store.Version())
}

func TestClosedSessionInFlightDoesNotSet(t *testing.T) {
	h := newHarness(t, 0)

	// Queued before the loop runs, then the session is torn down.
	h.source.deliver(payload("T-04", 9))
	h.source.teardown()
	h.source.deliver("marker, not json")

	stop := h.run(t)
	defer stop()

	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Rejected == 1 })
	assert.Zero(t, h.store.Version())
	assert.Zero(t, h.metrics.Snapshot().Accepted)
	assert.Equal(t, telemetry.PlaceholderTurbineID, h.store.Get().TurbineID)
}

func TestQueueDropsOldest(t *testing.T) {
	h := newHarness(t, 2)

	for i := 1; i <= 5; i++ {
		h.source.deliver(payload(fmt.Sprintf("T-%d", i), float64(i)))
	}
	snap := h.metrics.Snapshot()
	assert.Equal(t, uint64(5), snap.Received)
	assert.Equal(t, uint64(3), snap.Dropped)

	stop := h.run(t)
	defer stop()

	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Accepted == 2 })
	assert.Equal(t, "T-5", h.store.Get().TurbineID)
	assert.Equal(t, uint64(2), h.store.Version())
}

func TestLinkLossShowsPlaceholder(t *testing.T) {
	h := newHarness(t, 0)
	stop := h.run(t)
	defer stop()

	h.source.deliver(payload("T-04", 2))
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Accepted == 1 })

	h.source.state(transport.Connecting)
	require.Eventually(t, func() bool {
		return h.store.Get().HealthZone == pipeline.HealthDisconnected
	}, 5*time.Second, 5*time.Millisecond)

	f := h.store.Get()
	assert.Equal(t, telemetry.PlaceholderTurbineID, f.TurbineID)
	assert.Zero(t, f.RMSVelocity)
	assert.False(t, telemetry.IsDanger(f))

	h.source.state(transport.Connected)
	h.source.deliver(payload("T-04", 3))
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Accepted == 2 })
	assert.Equal(t, "T-04", h.store.Get().TurbineID)
	assert.Equal(t, telemetry.ZoneC, h.store.Get().HealthZone)
}

func TestLinkLossAfterQueuedMessages(t *testing.T) {
	h := newHarness(t, 0)

	for i := 0; i < 50; i++ {
		h.source.deliver(payload("T-04", 2))
	}
	h.source.state(transport.Connecting)
	h.source.deliver("marker, not json")

	stop := h.run(t)
	defer stop()

	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Rejected == 1 })
	assert.Equal(t, uint64(50), h.metrics.Snapshot().Accepted)
	assert.Equal(t, pipeline.HealthDisconnected, h.store.Get().HealthZone)
	assert.Equal(t, telemetry.PlaceholderTurbineID, h.store.Get().TurbineID)
}

func TestFullQueueKeepsLinkLoss(t *testing.T) {
	h := newHarness(t, 2)

	// The state change is pushed out of the queue by the two markers
	// but must still be applied ahead of them.
	h.source.deliver(payload("T-04", 2))
	h.source.state(transport.Connecting)
	h.source.deliver("first marker")
	h.source.deliver("second marker")
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Dropped)

	stop := h.run(t)
	defer stop()

	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Rejected == 2 })
	assert.Zero(t, h.metrics.Snapshot().Accepted)
	assert.Equal(t, pipeline.HealthDisconnected, h.store.Get().HealthZone)
	assert.Equal(t, uint64(1), h.store.Version())
}

func TestRunStopsWhenSessionCloses(t *testing.T) {
	h := newHarness(t, 0)

	errCh := make(chan error, 1)
	go func() { errCh <- h.pipeline.Run(context.Background()) }()

	h.source.close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after session close")
	}
}

func TestRendersInitialPlaceholder(t *testing.T) {
	h := newHarness(t, 0)
	stop := h.run(t)
	defer stop()

	require.Eventually(t, func() bool {
		f, ok := h.lastRendered()
		return ok && f.TurbineID == telemetry.PlaceholderTurbineID
	}, 5*time.Second, 5*time.Millisecond)
	h.waitFor(t, func(s metrics.Snapshot) bool { return s.Renders >= 1 })
}

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) MessageReceived()           { m.Called() }
func (m *mockCollector) FrameAccepted()             { m.Called() }
func (m *mockCollector) FrameRejected()             { m.Called() }
func (m *mockCollector) MessageDropped()            { m.Called() }
func (m *mockCollector) Rendered()                  { m.Called() }
func (m *mockCollector) Snapshot() metrics.Snapshot { return m.Called().Get(0).(metrics.Snapshot) }
func (m *mockCollector) Close() error               { return m.Called().Error(0) }

func TestCountsEveryOutcome(t *testing.T) {
	m := new(mockCollector)
	m.On("MessageReceived").Return()
	m.On("FrameAccepted").Return()
	m.On("FrameRejected").Return()
	m.On("Rendered").Return()

	s := store.New(telemetry.Placeholder(0))
	trigger, err := render.NewTrigger(1000, s.Get, func(telemetry.Frame) {})
	require.NoError(t, err)

	src := newFakeSource()
	p := pipeline.New(s, trigger, logger.Nop(), m, pipeline.Options{})
	p.Attach(src)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	src.deliver(payload("T-1", 1))
	src.deliver("{")
	src.deliver(payload("T-2", 1))
	require.Eventually(t, func() bool { return s.Version() == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	m.AssertNumberOfCalls(t, "MessageReceived", 3)
	m.AssertNumberOfCalls(t, "FrameAccepted", 2)
	m.AssertNumberOfCalls(t, "FrameRejected", 1)
	m.AssertNotCalled(t, "MessageDropped")
}
