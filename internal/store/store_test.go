package store_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/ecoguard/internal/store"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialPlaceholder(t *testing.T) {
	s := store.New(telemetry.Placeholder(telemetry.WideBins))

	f := s.Get()
	assert.Equal(t, telemetry.PlaceholderTurbineID, f.TurbineID)
	assert.Equal(t, telemetry.PlaceholderHealthZone, f.HealthZone)
	assert.Len(t, f.SpectrumPeaks, telemetry.WideBins)
	assert.Zero(t, s.Version())
}

func TestSetGetExact(t *testing.T) {
	s := store.New(telemetry.Placeholder(telemetry.CompactBins))

	first := telemetry.NewFrame("T-04", "Danger:Bearing", 7.82, []float64{0.1, 0.2, 0.3})
	first.Timestamp = 1760650000
	s.Set(first)
	assert.Equal(t, first, s.Get())
	assert.Equal(t, uint64(1), s.Version())

	second := telemetry.NewFrame("T-01", "Healthy", 0, []float64{})
	s.Set(second)
	got := s.Get()
	assert.Equal(t, second, got)
	assert.Zero(t, got.Timestamp, "no field leaks from the previous frame")
	assert.Empty(t, got.SpectrumPeaks)
	assert.Equal(t, uint64(2), s.Version())
}

func TestStoredFrameIsIsolated(t *testing.T) {
	s := store.New(telemetry.Placeholder(0))

	in := telemetry.NewFrame("T", "x", 1, []float64{1, 2})
	s.Set(in)
	in.SpectrumPeaks[0] = 99

	out := s.Get()
	assert.Equal(t, 1.0, out.SpectrumPeaks[0])
	out.SpectrumPeaks[1] = 42
	assert.Equal(t, 2.0, s.Get().SpectrumPeaks[1])
}

func TestListenersNotifiedInOrder(t *testing.T) {
	s := store.New(telemetry.Placeholder(0))

	var calls []string
	s.Subscribe(func(f telemetry.Frame) { calls = append(calls, "a:"+f.TurbineID) })
	s.Subscribe(func(f telemetry.Frame) {
		// Listeners run synchronously, so Get already reflects the new frame.
		assert.Equal(t, f, s.Get())
		calls = append(calls, "b:"+f.TurbineID)
	})

	s.Set(telemetry.NewFrame("T-1", "x", 1, nil))
	s.Set(telemetry.NewFrame("T-2", "x", 1, nil))

	assert.Equal(t, []string{"a:T-1", "b:T-1", "a:T-2", "b:T-2"}, calls)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	s := store.New(telemetry.Placeholder(0))

	var a, b int
	unsubA := s.Subscribe(func(telemetry.Frame) { a++ })
	s.Subscribe(func(telemetry.Frame) { b++ })

	s.Set(telemetry.NewFrame("T", "x", 1, nil))
	unsubA()
	unsubA()
	s.Set(telemetry.NewFrame("T", "x", 2, nil))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	s := store.New(telemetry.Placeholder(0))

	var unsub func()
	n := 0
	unsub = s.Subscribe(func(telemetry.Frame) {
		n++
		unsub()
	})

	require.NotPanics(t, func() {
		s.Set(telemetry.NewFrame("T", "x", 1, nil))
		s.Set(telemetry.NewFrame("T", "x", 1, nil))
	})
	assert.Equal(t, 1, n)
}

func TestConcurrentReaders(t *testing.T) {
	s := store.New(telemetry.Placeholder(telemetry.WideBins))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				f := s.Get()
				assert.NotEmpty(t, f.TurbineID)
			}
		}()
	}

	for i := 0; i < 500; i++ {
		s.Set(telemetry.NewFrame("T", telemetry.ClassifyRMS(float64(i)/50), float64(i)/50, make([]float64, 8)))
	}
	wg.Wait()

	assert.Equal(t, uint64(500), s.Version())
}
