package throughput

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConnectionState is the lifecycle state of the peripheral
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateAdvertising
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is the single accepted connection
type Session struct {
	ID        string // correlates log lines of one connection
	Conn      Conn
	Connected time.Time
}

// ConnectionManager owns the active connection reference.
// At most one connection is accepted; extra ones are terminated on arrival.
type ConnectionManager struct {
	active atomic.Pointer[Session]
	state  atomic.Int32
	ready  atomic.Bool

	mtu   *MTUTracker
	adv   Advertiser
	stats *Stats
	diag  Diagnostics
}

// NewConnectionManager creates a manager that resets mtu on every accepted connection
// and restarts advertising through adv after every disconnect
func NewConnectionManager(adv Advertiser, mtu *MTUTracker, stats *Stats, diag Diagnostics) *ConnectionManager {
	if stats == nil {
		stats = NewStats()
	}
	if diag == nil {
		diag = NewLogDiagnostics(nil)
	}
	return &ConnectionManager{
		mtu:   mtu,
		adv:   adv,
		stats: stats,
		diag:  diag,
	}
}

// StartAdvertising starts connectable advertising
func (m *ConnectionManager) StartAdvertising() error {
	if m.adv == nil {
		return fmt.Errorf("no advertiser configured")
	}
	if err := m.adv.StartAdvertising(); err != nil {
		m.diag.Warn("Failed to start advertiser", err, nil)
		return err
	}
	m.state.CompareAndSwap(int32(StateIdle), int32(StateAdvertising))
	m.diag.Info("Advertising started", nil)
	return nil
}

// OnConnectResult handles the outcome of a connection attempt.
// Returns ErrConnectionRejected if c was terminated because another connection is active.
func (m *ConnectionManager) OnConnectResult(c Conn, result ConnectResult, cause error) error {
	switch result {
	case ConnectCancelled:
		return nil
	case ConnectFailed:
		m.diag.Warn("Connection failed", cause, nil)
		return nil
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
	}
	if !m.active.CompareAndSwap(nil, sess) {
		m.stats.rejected.Add(1)
		existing := m.active.Load()
		fields := logrus.Fields{"peer": c.ID()}
		if existing != nil {
			fields["active_peer"] = existing.Conn.ID()
		}
		m.diag.Warn("Connection exists, disconnecting second connection", ErrConnectionRejected, fields)
		if err := c.Terminate(ReasonLocalHostTerminated); err != nil {
			m.diag.Warn("Failed to terminate rejected connection", err, fields)
		}
		return ErrConnectionRejected
	}

	m.mtu.Reset()
	m.state.Store(int32(StateConnected))
	m.ready.Store(true)
	m.stats.connections.Add(1)
	m.diag.Info("Connected", logrus.Fields{
		"peer":    c.ID(),
		"session": sess.ID,
		"mtu":     m.mtu.Current(),
	})
	return nil
}

// OnDisconnect releases c if it is the active connection and restarts advertising.
// Reports whether the active connection was released.
func (m *ConnectionManager) OnDisconnect(c Conn, reason DisconnectReason) bool {
	fields := logrus.Fields{"peer": c.ID(), "reason": fmt.Sprintf("0x%02x", uint8(reason))}

	released := false
	if sess := m.active.Load(); sess != nil && sess.Conn == c {
		m.ready.Store(false)
		released = m.active.CompareAndSwap(sess, nil)
		if released {
			fields["session"] = sess.ID
			fields["duration"] = time.Since(sess.Connected).Round(time.Millisecond).String()
			m.state.Store(int32(StateIdle))
			m.stats.disconnects.Add(1)
		}
	}
	m.diag.Info("Disconnected", fields)

	// Re-connect using the same role and parameters as at boot
	_ = m.StartAdvertising()
	return released
}

// Active returns the active session, or nil
func (m *ConnectionManager) Active() *Session {
	return m.active.Load()
}

// IsActive reports whether c is the active connection
func (m *ConnectionManager) IsActive(c Conn) bool {
	sess := m.active.Load()
	return sess != nil && sess.Conn == c
}

// State returns the lifecycle state
func (m *ConnectionManager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Ready reports whether the active connection finished setup
func (m *ConnectionManager) Ready() bool {
	return m.ready.Load()
}
