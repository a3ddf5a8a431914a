// Package render bounds how often views consume the presentation state.
package render

import (
	"math"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
)

// DefaultRate is the target number of renders per second.
const DefaultRate = 30.0

// Ticks may arrive slightly early; anything within this fraction of the
// interval still counts as a full interval.
const tickSlackDivisor = 10

// Trigger renders the latest frame at most once per interval, and only when
// the state changed since the previous render. It is not safe for concurrent
// use; the pipeline loop owns it.
type Trigger struct {
	interval time.Duration
	source   func() telemetry.Frame
	render   func(telemetry.Frame)

	dirty bool
	last  time.Time
	count uint64
}

// NewTrigger returns a trigger that renders source() through render at most
// rate times per second.
func NewTrigger(rate float64, source func() telemetry.Frame, render func(telemetry.Frame)) (*Trigger, error) {
	errFactory := errors.New()

	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, errFactory.WithData(ErrInvalidRate, rate)
	}
	if source == nil || render == nil {
		return nil, errFactory.New(ErrNoRenderer)
	}

	interval := time.Duration(float64(time.Second) / rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}

	return &Trigger{
		interval: interval,
		source:   source,
		render:   render,
	}, nil
}

// Interval is the minimum time between two renders.
func (t *Trigger) Interval() time.Duration {
	return t.interval
}

// Notify marks the state as changed. Its signature matches store.Listener
// so it can be subscribed directly.
func (t *Trigger) Notify(telemetry.Frame) {
	t.dirty = true
}

// Pending reports whether a render is owed.
func (t *Trigger) Pending() bool {
	return t.dirty
}

// Renders counts completed renders.
func (t *Trigger) Renders() uint64 {
	return t.count
}

// Tick renders the current frame if the state is dirty and a full interval
// has passed since the last render. It reports whether it rendered.
func (t *Trigger) Tick(now time.Time) bool {
	if !t.dirty {
		return false
	}
	if !t.last.IsZero() && now.Sub(t.last) < t.interval-t.interval/tickSlackDivisor {
		return false
	}

	t.dirty = false
	t.last = now
	t.count++
	t.render(t.source())

	return true
}
