package throughput

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPeripheral(t *testing.T, resetStreaming bool) (*Peripheral, *MockAdvertiser, *recordingDiagnostics) {
	t.Helper()

	adv := &MockAdvertiser{}
	diag := &recordingDiagnostics{}
	p := NewPeripheral(adv, &recordingChannel{}, &Options{
		MaxMTU:                     247,
		ResetStreamingOnDisconnect: resetStreaming,
		Logger:                     quietLogger(),
		Diagnostics:                diag,
	})
	return p, adv, diag
}

func TestPeripheral_DisconnectResetsStreaming(t *testing.T) {
	p, adv, _ := newTestPeripheral(t, true)
	adv.On("StartAdvertising").Return(nil)
	conn := newMockConn("AA:BB:CC:DD:EE:01")

	p.OnConnectResult(conn, ConnectSucceeded, nil)
	p.OnMTUExchanged(conn, 185)
	p.OnSubscriptionChanged(conn, true)
	p.OnControlWrite(conn, SetStreamingCommand(true))
	require.True(t, p.Streaming())

	p.OnDisconnect(conn, ReasonRemoteUserTerminated)

	assert.False(t, p.Subscription().Enabled())
	assert.False(t, p.Commands().Streaming())
	assert.False(t, p.Streaming())
	assert.Equal(t, StateAdvertising, p.Connections().State())
	adv.AssertNumberOfCalls(t, "StartAdvertising", 1)

	// A new peer starts from MTU 23 and must opt in again
	next := newMockConn("AA:BB:CC:DD:EE:02")
	p.OnConnectResult(next, ConnectSucceeded, nil)
	assert.Equal(t, uint16(DefaultMTU), p.MTU().Current())
	p.OnSubscriptionChanged(next, true)
	assert.False(t, p.Streaming())
}

func TestPeripheral_PersistStreamingAcrossReconnect(t *testing.T) {
	p, adv, _ := newTestPeripheral(t, false)
	adv.On("StartAdvertising").Return(nil)
	conn := newMockConn("AA:BB:CC:DD:EE:01")

	p.OnConnectResult(conn, ConnectSucceeded, nil)
	p.OnSubscriptionChanged(conn, true)
	p.OnControlWrite(conn, SetStreamingCommand(true))
	p.OnDisconnect(conn, ReasonRemoteUserTerminated)

	assert.True(t, p.Commands().Streaming(), "streaming flag MUST persist")
	assert.False(t, p.Streaming(), "subscription is always cleared")

	next := newMockConn("AA:BB:CC:DD:EE:02")
	p.OnConnectResult(next, ConnectSucceeded, nil)
	p.OnSubscriptionChanged(next, true)
	assert.True(t, p.Streaming(), "re-subscribing MUST resume streaming without a new command")
}

func TestPeripheral_IgnoresEventsFromInactiveConnection(t *testing.T) {
	p, _, _ := newTestPeripheral(t, true)
	active := newMockConn("AA:BB:CC:DD:EE:01")
	intruder := newMockConn("AA:BB:CC:DD:EE:02")
	intruder.On("Terminate", ReasonLocalHostTerminated).Return(nil)

	p.OnConnectResult(active, ConnectSucceeded, nil)
	p.OnMTUExchanged(active, 100)
	p.OnConnectResult(intruder, ConnectSucceeded, nil)

	p.OnMTUExchanged(intruder, 247)
	p.OnSubscriptionChanged(intruder, true)
	n := p.OnControlWrite(intruder, SetStreamingCommand(true))

	assert.Equal(t, 2, n)
	assert.Equal(t, uint16(100), p.MTU().Current())
	assert.False(t, p.Subscription().Enabled())
	assert.False(t, p.Commands().Streaming())
	assert.Equal(t, uint64(1), p.Stats().Rejected)
	intruder.AssertCalled(t, "Terminate", ReasonLocalHostTerminated)
	active.AssertNotCalled(t, "Terminate", mock.Anything)
}

func TestPeripheral_ControlWriteReportsConsumedLength(t *testing.T) {
	p, _, _ := newTestPeripheral(t, true)
	conn := newMockConn("AA:BB:CC:DD:EE:01")
	p.OnConnectResult(conn, ConnectSucceeded, nil)

	assert.Equal(t, 1, p.OnControlWrite(conn, []byte{0x01}))
	assert.Equal(t, 2, p.OnControlWrite(conn, []byte{0x02, 0x01}))
	assert.False(t, p.Commands().Streaming())

	assert.Equal(t, 2, p.OnControlWrite(conn, []byte{0x01, 0x01}))
	assert.True(t, p.Commands().Streaming())
	assert.Equal(t, uint64(3), p.Stats().ControlWrites)
}

func TestPeripheral_MTUExchangeIsReported(t *testing.T) {
	p, _, diag := newTestPeripheral(t, true)
	conn := newMockConn("AA:BB:CC:DD:EE:01")
	p.OnConnectResult(conn, ConnectSucceeded, nil)

	p.OnMTUExchanged(conn, 512)

	assert.Equal(t, uint16(247), p.MTU().Current())
	assert.Contains(t, diag.Events(), "Updated MTU")
}

func TestPeripheral_RunFailsWhenAdvertisingFails(t *testing.T) {
	p, adv, _ := newTestPeripheral(t, true)
	boom := errors.New("advertising not permitted")
	adv.On("StartAdvertising").Return(boom)

	err := p.Run(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, uint16(247), opts.MaxMTU)
	assert.Equal(t, DefaultIdleInterval, opts.IdleInterval)
	assert.True(t, opts.ResetStreamingOnDisconnect)
}

func TestNewPeripheral_NilOptions(t *testing.T) {
	p := NewPeripheral(&MockAdvertiser{}, &recordingChannel{}, nil)
	assert.Equal(t, uint16(247), p.MTU().Max())
	assert.Equal(t, StateIdle, p.Connections().State())
}
