package throughput

import "github.com/sirupsen/logrus"

// DisconnectReason is an HCI disconnect reason code
type DisconnectReason uint8

const (
	ReasonRemoteUserTerminated DisconnectReason = 0x13
	ReasonLocalHostTerminated  DisconnectReason = 0x16
	ReasonUnknown              DisconnectReason = 0xFF
)

// ConnectResult is the outcome of a link-layer connection attempt
type ConnectResult int

const (
	ConnectSucceeded ConnectResult = iota
	ConnectFailed
	ConnectCancelled
)

func (r ConnectResult) String() string {
	switch r {
	case ConnectSucceeded:
		return "succeeded"
	case ConnectFailed:
		return "failed"
	case ConnectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Conn is a connection handed over by the link layer
type Conn interface {
	// ID identifies the peer, usually its address
	ID() string

	// Terminate disconnects the peer with the given reason
	Terminate(reason DisconnectReason) error
}

// NotificationChannel emits one bounded notification on the data characteristic.
// Notify returns once the lower layer accepted the payload, or with an error if it refused it.
type NotificationChannel interface {
	Notify(data []byte) error
}

// Advertiser (re)starts connectable advertising. Advertising is one-shot:
// the link layer stops it once a connection forms.
type Advertiser interface {
	StartAdvertising() error
}

// EventSink receives link-layer events. Implementations must be safe to call
// from the link layer's own goroutines.
type EventSink interface {
	OnConnectResult(c Conn, result ConnectResult, cause error)
	OnDisconnect(c Conn, reason DisconnectReason)
	OnMTUExchanged(c Conn, txMTU uint16)
	OnSubscriptionChanged(c Conn, notify bool)
	OnControlWrite(c Conn, data []byte) int
}

// Diagnostics is a write-only sink for human-readable status events
type Diagnostics interface {
	Info(event string, fields logrus.Fields)
	Warn(event string, err error, fields logrus.Fields)
}

// logDiagnostics writes diagnostics straight to a logger
type logDiagnostics struct {
	logger *logrus.Logger
}

// NewLogDiagnostics returns a Diagnostics that only logs
func NewLogDiagnostics(logger *logrus.Logger) Diagnostics {
	if logger == nil {
		logger = logrus.New()
	}
	return &logDiagnostics{logger: logger}
}

func (d *logDiagnostics) Info(event string, fields logrus.Fields) {
	d.logger.WithFields(fields).Info(event)
}

func (d *logDiagnostics) Warn(event string, err error, fields logrus.Fields) {
	d.logger.WithFields(fields).WithError(err).Warn(event)
}
