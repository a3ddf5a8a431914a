// Package pipeline runs the single event loop that moves broker messages
// into the presentation store and drives the render trigger.
package pipeline

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/metrics"
	"codeberg.org/mutker/ecoguard/internal/render"
	"codeberg.org/mutker/ecoguard/internal/store"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/transport"
)

const (
	DefaultQueueSize = 256

	// HealthDisconnected replaces the health zone while the broker link
	// is down.
	HealthDisconnected = "Disconnected"
)

// Source is the part of a transport session the pipeline consumes.
type Source interface {
	OnMessage(transport.MessageHandler)
	OnStateChange(transport.StateHandler)
	Alive() bool
	Done() <-chan struct{}
}

// Message is one payload waiting for the loop.
type Message struct {
	Topic   string
	Payload []byte
}

// event is either a message or a link state change. Both share one queue
// so the loop sees them in the order the session produced them.
type event struct {
	msg     Message
	state   transport.State
	isState bool
}

type Options struct {
	QueueSize int
}

// Pipeline is the only writer of its store. Transport callbacks only
// enqueue; everything else happens on the goroutine running Run.
type Pipeline struct {
	store   *store.Store
	trigger *render.Trigger
	log     logger.Logger
	metrics metrics.Collector

	events chan event

	// Serializes producers so drop-oldest cannot starve. Also guards
	// carried, a state change pushed out of a full queue. It predates
	// every queued event and is applied before the next one.
	mu      sync.Mutex
	carried *transport.State

	source    Source
	connected bool
}

// New wires trigger to st. Attach a source before calling Run.
func New(st *store.Store, trigger *render.Trigger, log logger.Logger, m metrics.Collector, opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m, _ = metrics.NewService(metrics.Config{Enabled: false})
	}

	p := &Pipeline{
		store:   st,
		trigger: trigger,
		log:     log.With("pipeline"),
		metrics: m,
		events:  make(chan event, opts.QueueSize),
	}
	st.Subscribe(trigger.Notify)

	return p
}

// Attach registers the pipeline's handlers on src.
func (p *Pipeline) Attach(src Source) {
	p.source = src
	src.OnMessage(p.enqueue)
	src.OnStateChange(p.enqueueState)
}

// Run processes messages and link changes in delivery order until ctx is
// cancelled or the attached source is closed. Per-message failures never
// end the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.trigger.Interval())
	defer ticker.Stop()
	defer func() {
		p.log.Debug().
			Uint64("renders", p.trigger.Renders()).
			Bool("render_pending", p.trigger.Pending()).
			Msg("Pipeline stopped")
	}()

	var done <-chan struct{}
	if p.source != nil {
		done = p.source.Done()
		p.connected = true
	}

	// Render the initial state on the first tick.
	p.trigger.Notify(p.store.Get())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			p.log.Info().Msg("Session closed, stopping pipeline")
			return nil
		case ev := <-p.events:
			if st, ok := p.takeCarried(); ok {
				p.handleState(st)
			}
			if ev.isState {
				p.handleState(ev.state)
			} else {
				p.handle(ev.msg)
			}
		case now := <-ticker.C:
			if p.trigger.Tick(now) {
				p.metrics.Rendered()
			}
		}
	}
}

func (p *Pipeline) enqueue(topic string, payload []byte) {
	p.metrics.MessageReceived()
	p.push(event{msg: Message{Topic: topic, Payload: payload}})
}

func (p *Pipeline) enqueueState(st transport.State) {
	p.push(event{state: st, isState: true})
}

// push appends ev, dropping the oldest message when the queue is full. A
// dropped state change is kept in carried instead of being lost.
func (p *Pipeline) push(ev event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case p.events <- ev:
			return
		default:
		}

		select {
		case old := <-p.events:
			if old.isState {
				st := old.state
				p.carried = &st
				continue
			}
			p.metrics.MessageDropped()
			p.log.Debug().
				Str("topic", old.msg.Topic).
				Msg("Inbound queue full, dropped oldest message")
		default:
		}
	}
}

// takeCarried waits out a producer that is mid-drop so a carried state is
// never applied after the event that followed it.
func (p *Pipeline) takeCarried() (transport.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.carried == nil {
		return 0, false
	}
	st := *p.carried
	p.carried = nil

	return st, true
}

func (p *Pipeline) handle(msg Message) {
	f, err := telemetry.Decode(msg.Payload)
	if err != nil {
		p.metrics.FrameRejected()

		var coded errors.Coded
		if telemetry.IsMalformed(err) && errors.As(err, &coded) {
			p.log.ErrorWithCode(coded).
				Str("topic", msg.Topic).
				Int("bytes", len(msg.Payload)).
				Msg("Discarding telemetry message")
			return
		}
		p.log.Error().Err(err).Str("topic", msg.Topic).Msg("Unexpected decode failure")
		return
	}

	// Messages still queued when the session closed are dropped.
	if p.source != nil && !p.source.Alive() {
		p.log.Debug().
			Str("topic", msg.Topic).
			Msg("Session closed, discarding in-flight message")
		return
	}

	if id, ok := transport.TurbineFromTopic(msg.Topic); ok && id != f.TurbineID {
		p.log.Debug().
			Str("topic", msg.Topic).
			Str("turbine_id", f.TurbineID).
			Msg("Turbine id differs from topic")
	}

	p.store.Set(f)
	p.metrics.FrameAccepted()
}

func (p *Pipeline) handleState(st transport.State) {
	switch st {
	case transport.Connected:
		if !p.connected {
			p.log.Info().Msg("Broker link restored")
		}
		p.connected = true
	case transport.Connecting, transport.Disconnected:
		if !p.connected {
			return
		}
		p.connected = false

		if p.source != nil && !p.source.Alive() {
			return
		}

		f := telemetry.Placeholder(telemetry.WideBins)
		f.HealthZone = HealthDisconnected
		p.store.Set(f)
		p.log.Warn().Msg("Broker link lost, showing placeholder")
	}
}
