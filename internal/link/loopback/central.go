package loopback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srg/blepump/internal/throughput"
)

// Central is an in-process peer. It verifies every notification it receives
// against the pattern.
type Central struct {
	id   string
	link *Link

	closed atomic.Bool
	reason atomic.Uint32

	mu            sync.Mutex
	mtu           uint16
	notifications uint64
	largest       int
	oversize      uint64
	verifier      *throughput.PatternVerifier
	received      chan struct{}
}

var _ throughput.Conn = (*Central)(nil)

// ID implements throughput.Conn
func (c *Central) ID() string {
	return c.id
}

// Terminate implements throughput.Conn. It is the peripheral dropping the link.
func (c *Central) Terminate(reason throughput.DisconnectReason) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrLinkClosed
	}
	c.reason.Store(uint32(reason))
	c.link.setSubscriber(c, false)
	c.sink().OnDisconnect(c, reason)
	return nil
}

// Closed reports whether the link is down
func (c *Central) Closed() bool {
	return c.closed.Load()
}

// Reason returns the disconnect reason once Closed
func (c *Central) Reason() throughput.DisconnectReason {
	return throughput.DisconnectReason(c.reason.Load())
}

// ExchangeMTU negotiates mtu with the peripheral
func (c *Central) ExchangeMTU(mtu uint16) error {
	if c.closed.Load() {
		return ErrLinkClosed
	}
	c.mu.Lock()
	c.mtu = mtu
	c.mu.Unlock()
	c.sink().OnMTUExchanged(c, mtu)
	return nil
}

// Subscribe writes the CCC descriptor of the data characteristic
func (c *Central) Subscribe(notify bool) error {
	if c.closed.Load() {
		return ErrLinkClosed
	}
	c.link.setSubscriber(c, notify)
	c.sink().OnSubscriptionChanged(c, notify)
	return nil
}

// Write sends a write-without-response to the control characteristic
func (c *Central) Write(data []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrLinkClosed
	}
	return c.sink().OnControlWrite(c, data), nil
}

// SetStreaming writes the streaming command
func (c *Central) SetStreaming(enable bool) error {
	data := throughput.SetStreamingCommand(enable)
	n, err := c.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("control write consumed %d of %d bytes", n, len(data))
	}
	return nil
}

// Disconnect drops the link from the central side
func (c *Central) Disconnect() error {
	return c.Terminate(throughput.ReasonRemoteUserTerminated)
}

// Received returns a channel signalled after notifications arrive
func (c *Central) Received() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.received == nil {
		c.received = make(chan struct{}, 1)
	}
	return c.received
}

// Notifications returns how many notifications arrived
func (c *Central) Notifications() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifications
}

// Largest returns the largest notification payload seen
func (c *Central) Largest() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.largest
}

// Oversize returns how many notifications did not fit the negotiated MTU
func (c *Central) Oversize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oversize
}

// Result returns the verification result so far
func (c *Central) Result() throughput.VerifierResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifier.Result()
}

func (c *Central) receive(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notifications++
	c.largest = max(c.largest, len(data))
	if len(data) > int(c.mtu)-throughput.MTUOverhead {
		c.oversize++
	}
	_, _ = c.verifier.Write(data)

	if c.received != nil {
		select {
		case c.received <- struct{}{}:
		default:
		}
	}
}

func (c *Central) sink() throughput.EventSink {
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	return c.link.sink
}
