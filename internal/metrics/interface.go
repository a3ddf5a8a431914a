package metrics

import "time"

// Collector defines the core domain interface
type Collector interface {
	MessageReceived()
	FrameAccepted()
	FrameRejected()
	MessageDropped()
	Rendered()
	Snapshot() Snapshot
	Close() error
}

type Config struct {
	Enabled bool
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// Snapshot is a point-in-time copy of the pipeline counters
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Enabled      bool      `json:"enabled"`
	Received     uint64    `json:"received"`
	Accepted     uint64    `json:"accepted"`
	Rejected     uint64    `json:"rejected"`
	Dropped      uint64    `json:"dropped"`
	Renders      uint64    `json:"renders"`
	LastAccepted time.Time `json:"last_accepted,omitempty"`
	Uptime       string    `json:"uptime"`
}
