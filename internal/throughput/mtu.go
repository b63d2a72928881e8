package throughput

import "sync/atomic"

const (
	// DefaultMTU is the ATT_MTU every LE connection starts with
	DefaultMTU = 23

	// MTUOverhead is the ATT notification header (opcode + handle)
	MTUOverhead = 3

	// MaxATTMTU is the largest ATT_MTU the protocol allows
	MaxATTMTU = 517
)

// MTUTracker holds the usable transmission unit of the active connection.
// It is written by link events and read by the pump.
type MTUTracker struct {
	max     uint16
	current atomic.Uint32
}

// NewMTUTracker creates a tracker clamped to maxMTU. Values outside
// [DefaultMTU, MaxATTMTU] are clamped into that range.
func NewMTUTracker(maxMTU uint16) *MTUTracker {
	if maxMTU < DefaultMTU {
		maxMTU = DefaultMTU
	}
	if maxMTU > MaxATTMTU {
		maxMTU = MaxATTMTU
	}
	t := &MTUTracker{max: maxMTU}
	t.current.Store(DefaultMTU)
	return t
}

// Reset returns the MTU to DefaultMTU. Called on every accepted connection.
func (t *MTUTracker) Reset() {
	t.current.Store(DefaultMTU)
}

// OnExchangeComplete records the negotiated tx MTU and returns the value in effect
func (t *MTUTracker) OnExchangeComplete(txSize uint16) uint16 {
	mtu := txSize
	if mtu > t.max {
		mtu = t.max
	}
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	t.current.Store(uint32(mtu))
	return mtu
}

// Current returns the MTU in effect
func (t *MTUTracker) Current() uint16 {
	return uint16(t.current.Load())
}

// Max returns the configured maximum MTU
func (t *MTUTracker) Max() uint16 {
	return t.max
}

// Usable returns the payload bytes available per notification
func (t *MTUTracker) Usable() int {
	return int(t.Current()) - MTUOverhead
}
