package throughput

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultIdleInterval is the fallback re-check period while not streaming
const DefaultIdleInterval = 100 * time.Millisecond

// StreamPump drives the data path. It is the only sender on the notification
// channel and the only user of its pattern generator and buffer.
type StreamPump struct {
	gen    *PatternGenerator
	sender *FragmentingSender
	ch     NotificationChannel
	mtu    *MTUTracker
	subs   *SubscriptionTracker
	cmds   *CommandProcessor
	stats  *Stats
	diag   Diagnostics
	logger *logrus.Logger

	wake <-chan struct{}
	idle time.Duration
	buf  []byte
}

// PumpOptions wires a StreamPump
type PumpOptions struct {
	Generator    *PatternGenerator
	Sender       *FragmentingSender
	Channel      NotificationChannel
	MTU          *MTUTracker
	Subscription *SubscriptionTracker
	Commands     *CommandProcessor
	Stats        *Stats
	Diagnostics  Diagnostics
	Logger       *logrus.Logger
	Wake         <-chan struct{} // signalled on every state change; may be nil
	IdleInterval time.Duration
}

// NewStreamPump creates a pump with a buffer sized for the largest MTU
func NewStreamPump(opts PumpOptions) *StreamPump {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = NewLogDiagnostics(opts.Logger)
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	if opts.Generator == nil {
		opts.Generator = NewPatternGenerator(0)
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}

	return &StreamPump{
		gen:    opts.Generator,
		sender: opts.Sender,
		ch:     opts.Channel,
		mtu:    opts.MTU,
		subs:   opts.Subscription,
		cmds:   opts.Commands,
		stats:  opts.Stats,
		diag:   opts.Diagnostics,
		logger: opts.Logger,
		wake:   opts.Wake,
		idle:   opts.IdleInterval,
		buf:    make([]byte, int(opts.MTU.Max())-MTUOverhead),
	}
}

// Streaming reports whether the peer is subscribed and asked for streaming
func (p *StreamPump) Streaming() bool {
	return p.subs.Enabled() && p.cmds.Streaming()
}

// Run pumps until ctx is done. Idle waits for a wake signal or the idle interval;
// streaming iterations follow each other without delay.
func (p *StreamPump) Run(ctx context.Context) error {
	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	p.logger.WithField("idle_interval", p.idle).Debug("Stream pump started")
	defer p.logger.Debug("Stream pump stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !p.Streaming() {
			timer.Reset(p.idle)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
			case <-timer.C:
			}
			continue
		}

		if err := p.Step(); err != nil {
			p.diag.Warn("Failed to send buffer", err, logrus.Fields{"mtu": p.mtu.Current()})
		}
	}
}

// Step generates one MTU-sized buffer and sends it
func (p *StreamPump) Step() error {
	n := min(p.mtu.Usable(), len(p.buf))
	buf := p.buf[:n]
	p.gen.Fill(buf)
	p.stats.buffers.Add(1)
	return p.sender.Send(buf, p.ch)
}
