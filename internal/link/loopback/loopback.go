// Package loopback is an in-process link layer. A Link plays the radio for a
// throughput peripheral and Centrals play the peers, so the whole peripheral
// can run without Bluetooth hardware.
package loopback

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/blepump/internal/throughput"
)

// ErrLinkClosed is returned when a central uses a terminated connection
var ErrLinkClosed = errors.New("loopback link closed")

// Link connects a throughput.EventSink with in-process centrals
type Link struct {
	sink throughput.EventSink

	mu          sync.Mutex
	advertising bool
	adverts     int
	subscriber  *Central
	advErr      error

	latency  time.Duration
	failNext atomic.Int32
	failErr  error
}

var (
	_ throughput.Advertiser          = (*Link)(nil)
	_ throughput.NotificationChannel = (*Link)(nil)
)

// New creates a link. Attach must be called before centrals connect.
func New() *Link {
	return &Link{failErr: fmt.Errorf("notification queue full")}
}

// Attach routes link events to sink
func (l *Link) Attach(sink throughput.EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetLatency delays every accepted notification by d
func (l *Link) SetLatency(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency = d
}

// FailNotifications makes the next n notifications fail with err
func (l *Link) FailNotifications(n int, err error) {
	l.mu.Lock()
	if err != nil {
		l.failErr = err
	}
	l.mu.Unlock()
	l.failNext.Store(int32(n))
}

// FailAdvertising makes StartAdvertising fail with err until cleared with nil
func (l *Link) FailAdvertising(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advErr = err
}

// StartAdvertising implements throughput.Advertiser
func (l *Link) StartAdvertising() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.advErr != nil {
		return l.advErr
	}
	l.advertising = true
	l.adverts++
	return nil
}

// Advertising reports whether a connection would currently be accepted by the radio
func (l *Link) Advertising() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.advertising
}

// Adverts returns how many times advertising was started
func (l *Link) Adverts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adverts
}

// Notify implements throughput.NotificationChannel by delivering data to the subscribed central
func (l *Link) Notify(data []byte) error {
	l.mu.Lock()
	sub := l.subscriber
	latency := l.latency
	failErr := l.failErr
	l.mu.Unlock()

	if sub == nil || sub.closed.Load() {
		return throughput.ErrNotConnected
	}
	if l.failNext.Load() > 0 && l.failNext.Add(-1) >= 0 {
		return failErr
	}
	if latency > 0 {
		time.Sleep(latency)
	}
	sub.receive(data)
	return nil
}

// Connect opens a connection from a new central. Advertising stops as a
// real controller does once a connection forms; the peripheral may still
// reject the connection, in which case the returned central is already closed.
func (l *Link) Connect(id string) (*Central, error) {
	l.mu.Lock()
	sink := l.sink
	if sink == nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("link is not attached")
	}
	if !l.advertising {
		l.mu.Unlock()
		return nil, fmt.Errorf("%s: peripheral is not advertising", id)
	}
	l.advertising = false
	l.mu.Unlock()

	c := &Central{
		id:       id,
		link:     l,
		mtu:      throughput.DefaultMTU,
		verifier: throughput.NewPatternVerifier(),
	}
	sink.OnConnectResult(c, throughput.ConnectSucceeded, nil)
	return c, nil
}

// FailConnect reports a failed connection attempt to the peripheral
func (l *Link) FailConnect(id string, cause error) {
	l.mu.Lock()
	sink := l.sink
	l.mu.Unlock()
	if sink != nil {
		sink.OnConnectResult(&Central{id: id, link: l}, throughput.ConnectFailed, cause)
	}
}

func (l *Link) setSubscriber(c *Central, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case on:
		l.subscriber = c
	case l.subscriber == c:
		l.subscriber = nil
	}
}
