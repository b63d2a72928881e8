package throughput

import (
	"sync/atomic"
	"time"
)

// Stats counts data path activity. All fields are updated atomically.
type Stats struct {
	started       atomic.Int64 // unix nanoseconds
	buffers       atomic.Uint64
	fragments     atomic.Uint64
	bytes         atomic.Uint64
	sendFailures  atomic.Uint64
	connections   atomic.Uint64
	rejected      atomic.Uint64
	disconnects   atomic.Uint64
	controlWrites atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Elapsed       time.Duration `json:"elapsed" yaml:"elapsed"`
	Buffers       uint64        `json:"buffers" yaml:"buffers"`
	Fragments     uint64        `json:"fragments" yaml:"fragments"`
	Bytes         uint64        `json:"bytes" yaml:"bytes"`
	SendFailures  uint64        `json:"send_failures" yaml:"send_failures"`
	Connections   uint64        `json:"connections" yaml:"connections"`
	Rejected      uint64        `json:"rejected" yaml:"rejected"`
	Disconnects   uint64        `json:"disconnects" yaml:"disconnects"`
	ControlWrites uint64        `json:"control_writes" yaml:"control_writes"`
}

// NewStats creates counters starting now
func NewStats() *Stats {
	s := &Stats{}
	s.started.Store(time.Now().UnixNano())
	return s
}

// Snapshot copies the counters
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Elapsed:       time.Since(time.Unix(0, s.started.Load())),
		Buffers:       s.buffers.Load(),
		Fragments:     s.fragments.Load(),
		Bytes:         s.bytes.Load(),
		SendFailures:  s.sendFailures.Load(),
		Connections:   s.connections.Load(),
		Rejected:      s.rejected.Load(),
		Disconnects:   s.disconnects.Load(),
		ControlWrites: s.controlWrites.Load(),
	}
}

// BytesPerSecond returns the average notification payload rate
func (s StatsSnapshot) BytesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}
