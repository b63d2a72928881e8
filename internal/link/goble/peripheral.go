// Package goble connects the throughput core to a go-ble/ble host stack.
//
// go-ble does not surface connect, disconnect or MTU events to a GATT server,
// so the adapter derives them: the first request on a ble.Conn is its connect
// event, the conn's disconnect channel is its disconnect event, and a change
// of Conn.TxMTU is an MTU exchange. The notify handler marks the subscription
// and provides the notifier the pump writes to.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepump/internal/groutine"
	"github.com/srg/blepump/internal/throughput"
)

// ErrUnsupportedPlatform is returned when no BLE host stack exists for this OS
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return newDefaultDevice()
}

// Host is the part of ble.Device a peripheral needs
type Host interface {
	AddService(svc *ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

// Options configures the adapter
type Options struct {
	Name        string
	ServiceUUID ble.UUID
	Logger      *logrus.Logger
}

// Peripheral adapts a go-ble host to the throughput core. It is the core's
// Advertiser and NotificationChannel, and feeds link events into an EventSink.
type Peripheral struct {
	host   Host
	name   string
	svcID  ble.UUID
	logger *logrus.Logger

	sink  throughput.EventSink
	ctx   context.Context
	conns *hashmap.Map[string, *linkConn]

	notifier atomic.Pointer[subscription]

	advMu     sync.Mutex
	advCancel context.CancelFunc
	advDone   chan struct{}
}

// subscription is a live notify handler
type subscription struct {
	conn     *linkConn
	notifier ble.Notifier
}

var (
	_ throughput.Advertiser          = (*Peripheral)(nil)
	_ throughput.NotificationChannel = (*Peripheral)(nil)
)

// NewPeripheral creates an adapter over host
func NewPeripheral(host Host, opts Options) *Peripheral {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Peripheral{
		host:   host,
		name:   opts.Name,
		svcID:  opts.ServiceUUID,
		logger: opts.Logger,
		ctx:    context.Background(),
		conns:  hashmap.New[string, *linkConn](),
	}
}

// Attach registers the GATT service and routes its events to sink.
// Advertising started later lives until ctx is done.
func (p *Peripheral) Attach(ctx context.Context, sink throughput.EventSink) error {
	if sink == nil {
		return fmt.Errorf("event sink is nil")
	}
	p.ctx = ctx
	p.sink = sink

	svc := NewService(p.svcID, p.handleControlWrite, p.handleDataNotify)
	if err := p.host.AddService(svc); err != nil {
		return fmt.Errorf("failed to add service %s: %w", p.svcID, err)
	}

	p.logger.WithFields(logrus.Fields{
		"service": p.svcID.String(),
		"control": ControlCharUUID.String(),
		"data":    DataCharUUID.String(),
	}).Debug("Throughput service registered")
	return nil
}

// StartAdvertising implements throughput.Advertiser. A running advertisement is
// replaced. Advertising stops once a connection is observed.
func (p *Peripheral) StartAdvertising() error {
	if p.sink == nil {
		return fmt.Errorf("peripheral is not attached")
	}

	p.advMu.Lock()
	defer p.advMu.Unlock()

	p.stopAdvertisingLocked(true)

	ctx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.advCancel = cancel
	p.advDone = done

	groutine.Go(ctx, "ble-advertiser", func(ctx context.Context) {
		defer close(done)
		err := p.host.AdvertiseNameAndServices(ctx, p.name, p.svcID)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.WithError(err).Warn("Failed to start advertiser")
		}
	})
	return nil
}

// stopAdvertising cancels the running advertisement without waiting for it
func (p *Peripheral) stopAdvertising() {
	p.advMu.Lock()
	defer p.advMu.Unlock()
	p.stopAdvertisingLocked(false)
}

func (p *Peripheral) stopAdvertisingLocked(wait bool) {
	if p.advCancel == nil {
		return
	}
	p.advCancel()
	if wait {
		<-p.advDone
		p.advCancel = nil
		p.advDone = nil
	}
}

// Notify implements throughput.NotificationChannel
func (p *Peripheral) Notify(data []byte) error {
	sub := p.notifier.Load()
	if sub == nil {
		return throughput.ErrNotConnected
	}
	p.refreshMTU(sub.conn)

	if _, err := sub.notifier.Write(data); err != nil {
		return throughput.NormalizeError(err)
	}
	return nil
}

// Stop stops advertising and the host stack
func (p *Peripheral) Stop() error {
	p.advMu.Lock()
	p.stopAdvertisingLocked(true)
	p.advMu.Unlock()
	return p.host.Stop()
}

func (p *Peripheral) handleControlWrite(req ble.Request, rsp ble.ResponseWriter) {
	lc := p.observe(req.Conn())
	n := p.sink.OnControlWrite(lc, req.Data())
	p.logger.WithFields(logrus.Fields{
		"peer":     lc.ID(),
		"consumed": n,
	}).Debug("Control write")
}

func (p *Peripheral) handleDataNotify(req ble.Request, n ble.Notifier) {
	lc := p.observe(req.Conn())
	sub := &subscription{conn: lc, notifier: n}

	if p.accepts(lc) {
		p.notifier.Store(sub)
	}
	p.sink.OnSubscriptionChanged(lc, true)

	<-n.Context().Done()

	p.notifier.CompareAndSwap(sub, nil)
	p.sink.OnSubscriptionChanged(lc, false)
}

// accepts reports whether the sink treats lc as its active connection.
// Sinks that do not track connections accept everything.
func (p *Peripheral) accepts(lc *linkConn) bool {
	if a, ok := p.sink.(interface{ IsActive(throughput.Conn) bool }); ok {
		return a.IsActive(lc)
	}
	return true
}

// observe returns the linkConn for c, raising the connect event the first time c is seen
func (p *Peripheral) observe(c ble.Conn) *linkConn {
	key := c.RemoteAddr().String()
	lc, ok := p.conns.Get(key)
	if ok && lc.conn == c {
		p.refreshMTU(lc)
		return lc
	}

	lc = newLinkConn(c)
	if cur, loaded := p.conns.GetOrInsert(key, lc); loaded {
		if cur.conn == c {
			p.refreshMTU(cur)
			return cur
		}
		// reconnect from the same address before the old link was reaped
		p.conns.Set(key, lc)
	}

	p.stopAdvertising()
	p.sink.OnConnectResult(lc, throughput.ConnectSucceeded, nil)
	p.refreshMTU(lc)

	groutine.Go(p.ctx, "ble-conn-monitor", func(ctx context.Context) {
		p.watch(ctx, key, lc)
	})
	return lc
}

// watch raises the disconnect event when lc goes away
func (p *Peripheral) watch(ctx context.Context, key string, lc *linkConn) {
	select {
	case <-lc.disconnected():
	case <-ctx.Done():
		return
	}

	if cur, ok := p.conns.Get(key); ok && cur == lc {
		p.conns.Del(key)
	}
	if sub := p.notifier.Load(); sub != nil && sub.conn == lc {
		p.notifier.CompareAndSwap(sub, nil)
	}
	p.sink.OnDisconnect(lc, throughput.ReasonUnknown)
}

// refreshMTU raises an MTU exchange when the peer's ATT_MTU changed
func (p *Peripheral) refreshMTU(lc *linkConn) {
	mtu := lc.conn.TxMTU()
	if mtu <= 0 {
		p.logger.WithError(throughput.ErrExchangeFailure).WithField("peer", lc.ID()).Warn("Failed to read connection MTU")
		return
	}
	if int(lc.mtu.Swap(int32(mtu))) == mtu {
		return
	}
	p.sink.OnMTUExchanged(lc, uint16(min(mtu, throughput.MaxATTMTU)))
}

// Connections returns the number of live go-ble connections seen
func (p *Peripheral) Connections() int {
	return p.conns.Len()
}
