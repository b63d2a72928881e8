package goble

import (
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/srg/blepump/internal/throughput"
)

// linkConn wraps a ble.Conn as a throughput.Conn
type linkConn struct {
	conn ble.Conn
	id   string
	mtu  atomic.Int32 // last TxMTU reported to the core
}

var _ throughput.Conn = (*linkConn)(nil)

func newLinkConn(c ble.Conn) *linkConn {
	return &linkConn{conn: c, id: c.RemoteAddr().String()}
}

// ID returns the peer address
func (c *linkConn) ID() string {
	return c.id
}

// Terminate closes the connection. go-ble does not let the caller choose the HCI reason.
func (c *linkConn) Terminate(_ throughput.DisconnectReason) error {
	return c.conn.Close()
}

// disconnected returns a channel closed when the link drops. Conns without
// a disconnect channel fall back to their context.
func (c *linkConn) disconnected() <-chan struct{} {
	if dc, ok := c.conn.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	return c.conn.Context().Done()
}
