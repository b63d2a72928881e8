package throughput

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Peripheral
type Options struct {
	MaxMTU       uint16
	IdleInterval time.Duration
	PatternStart uint32

	// ResetStreamingOnDisconnect clears the streaming flag when the active
	// connection drops, so a new peer has to send the enable command again.
	ResetStreamingOnDisconnect bool

	Logger      *logrus.Logger
	Diagnostics Diagnostics
}

// DefaultOptions returns options for a 247-byte MTU peripheral that resets streaming on disconnect
func DefaultOptions() *Options {
	return &Options{
		MaxMTU:                     247,
		IdleInterval:               DefaultIdleInterval,
		ResetStreamingOnDisconnect: true,
	}
}

// Peripheral wires the throughput components together and receives link events
type Peripheral struct {
	conns  *ConnectionManager
	mtu    *MTUTracker
	subs   *SubscriptionTracker
	cmds   *CommandProcessor
	sender *FragmentingSender
	pump   *StreamPump
	stats  *Stats
	diag   Diagnostics
	logger *logrus.Logger

	resetStreaming bool
	wake           chan struct{}
}

var _ EventSink = (*Peripheral)(nil)

// NewPeripheral creates a peripheral advertising through adv and notifying through ch
func NewPeripheral(adv Advertiser, ch NotificationChannel, opts *Options) *Peripheral {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	diag := opts.Diagnostics
	if diag == nil {
		diag = NewLogDiagnostics(logger)
	}

	p := &Peripheral{
		mtu:            NewMTUTracker(opts.MaxMTU),
		subs:           &SubscriptionTracker{},
		cmds:           &CommandProcessor{},
		stats:          NewStats(),
		diag:           diag,
		logger:         logger,
		resetStreaming: opts.ResetStreamingOnDisconnect,
		wake:           make(chan struct{}, 1),
	}
	p.conns = NewConnectionManager(adv, p.mtu, p.stats, diag)
	p.sender = NewFragmentingSender(p.conns, p.mtu, p.stats)
	p.pump = NewStreamPump(PumpOptions{
		Generator:    NewPatternGenerator(opts.PatternStart),
		Sender:       p.sender,
		Channel:      ch,
		MTU:          p.mtu,
		Subscription: p.subs,
		Commands:     p.cmds,
		Stats:        p.stats,
		Diagnostics:  diag,
		Logger:       logger,
		Wake:         p.wake,
		IdleInterval: opts.IdleInterval,
	})
	return p
}

// Run starts advertising and pumps until ctx is done
func (p *Peripheral) Run(ctx context.Context) error {
	if err := p.conns.StartAdvertising(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	return p.pump.Run(ctx)
}

// signal wakes an idle pump without blocking
func (p *Peripheral) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// OnConnectResult implements EventSink
func (p *Peripheral) OnConnectResult(c Conn, result ConnectResult, cause error) {
	_ = p.conns.OnConnectResult(c, result, cause)
	p.signal()
}

// OnDisconnect implements EventSink
func (p *Peripheral) OnDisconnect(c Conn, reason DisconnectReason) {
	if p.conns.OnDisconnect(c, reason) {
		// CCC state belongs to the link and is gone with it
		p.subs.OnSubscriptionChange(false)
		if p.resetStreaming {
			p.cmds.Reset()
		}
	}
	p.signal()
}

// OnMTUExchanged implements EventSink
func (p *Peripheral) OnMTUExchanged(c Conn, txMTU uint16) {
	if !p.conns.IsActive(c) {
		p.logger.WithField("peer", c.ID()).Debug("Ignoring MTU exchange from inactive connection")
		return
	}
	mtu := p.mtu.OnExchangeComplete(txMTU)
	p.diag.Info("Updated MTU", logrus.Fields{"tx": txMTU, "mtu": mtu})
	p.signal()
}

// OnSubscriptionChanged implements EventSink
func (p *Peripheral) OnSubscriptionChanged(c Conn, notify bool) {
	if !p.conns.IsActive(c) {
		p.logger.WithField("peer", c.ID()).Debug("Ignoring subscription change from inactive connection")
		return
	}
	p.subs.OnSubscriptionChange(notify)
	p.diag.Info("Subscription changed", logrus.Fields{"notify": notify})
	p.signal()
}

// OnControlWrite implements EventSink. Returns the number of bytes consumed.
func (p *Peripheral) OnControlWrite(c Conn, data []byte) int {
	if !p.conns.IsActive(c) {
		p.logger.WithField("peer", c.ID()).Debug("Ignoring control write from inactive connection")
		return len(data)
	}
	n, applied := p.cmds.HandleWrite(data)
	p.stats.controlWrites.Add(1)
	if applied {
		p.logger.WithField("streaming", p.cmds.Streaming()).Debug("Control command applied")
		p.signal()
	}
	return n
}

// IsActive reports whether c is the accepted connection
func (p *Peripheral) IsActive(c Conn) bool {
	return p.conns.IsActive(c)
}

// Connections returns the connection manager
func (p *Peripheral) Connections() *ConnectionManager {
	return p.conns
}

// MTU returns the MTU tracker
func (p *Peripheral) MTU() *MTUTracker {
	return p.mtu
}

// Subscription returns the subscription tracker
func (p *Peripheral) Subscription() *SubscriptionTracker {
	return p.subs
}

// Commands returns the command processor
func (p *Peripheral) Commands() *CommandProcessor {
	return p.cmds
}

// Streaming reports whether the pump is in the streaming state
func (p *Peripheral) Streaming() bool {
	return p.pump.Streaming()
}

// Stats returns a snapshot of the counters
func (p *Peripheral) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}
