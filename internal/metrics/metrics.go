package metrics

import (
	"sync/atomic"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
)

type service struct {
	started time.Time
	now     func() time.Time
	closed  atomic.Bool

	received     atomic.Uint64
	accepted     atomic.Uint64
	rejected     atomic.Uint64
	dropped      atomic.Uint64
	renders      atomic.Uint64
	lastAccepted atomic.Int64
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	return newService(cfg, time.Now)
}

func newService(cfg Config, now func() time.Time) (Collector, error) {
	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	logger.Debug().
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return &service{
		started: now(),
		now:     now,
	}, nil
}

func (s *service) MessageReceived() { s.received.Add(1) }
func (s *service) FrameRejected()   { s.rejected.Add(1) }
func (s *service) MessageDropped()  { s.dropped.Add(1) }
func (s *service) Rendered()        { s.renders.Add(1) }

func (s *service) FrameAccepted() {
	s.accepted.Add(1)
	s.lastAccepted.Store(s.now().UnixNano())
}

func (s *service) Snapshot() Snapshot {
	now := s.now()

	snap := Snapshot{
		Timestamp: now,
		Enabled:   true,
		Received:  s.received.Load(),
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Dropped:   s.dropped.Load(),
		Renders:   s.renders.Load(),
		Uptime:    now.Sub(s.started).Truncate(time.Second).String(),
	}
	if ns := s.lastAccepted.Load(); ns != 0 {
		snap.LastAccepted = time.Unix(0, ns)
	}

	return snap
}

func (s *service) Close() error {
	errFactory := errors.New()

	if !s.closed.CompareAndSwap(false, true) {
		return errFactory.New(ErrServiceClosed)
	}

	snap := s.Snapshot()
	logger.Debug().
		Uint64("received", snap.Received).
		Uint64("accepted", snap.Accepted).
		Uint64("rejected", snap.Rejected).
		Uint64("dropped", snap.Dropped).
		Uint64("renders", snap.Renders).
		Msg("Metrics service closed")

	return nil
}

// No-op implementation
func (*noopCollector) MessageReceived() {}
func (*noopCollector) FrameAccepted()   {}
func (*noopCollector) FrameRejected()   {}
func (*noopCollector) MessageDropped()  {}
func (*noopCollector) Rendered()        {}

func (*noopCollector) Snapshot() Snapshot {
	return Snapshot{Timestamp: time.Now()}
}

func (*noopCollector) Close() error {
	return nil
}
