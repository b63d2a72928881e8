package throughput

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// MockConn is a testify mock of Conn
type MockConn struct {
	mock.Mock
	id string
}

func newMockConn(id string) *MockConn {
	return &MockConn{id: id}
}

func (c *MockConn) ID() string {
	return c.id
}

func (c *MockConn) Terminate(reason DisconnectReason) error {
	args := c.Called(reason)
	return args.Error(0)
}

// MockAdvertiser is a testify mock of Advertiser
type MockAdvertiser struct {
	mock.Mock
}

func (a *MockAdvertiser) StartAdvertising() error {
	args := a.Called()
	return args.Error(0)
}

// recordingChannel records every notification and can refuse the Nth one
type recordingChannel struct {
	mu      sync.Mutex
	frames  [][]byte
	failAt  int // 1-based notification index to refuse; 0 never fails
	calls   int
	failErr error
}

func (c *recordingChannel) Notify(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return c.failErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingChannel) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *recordingChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingDiagnostics keeps event names
type recordingDiagnostics struct {
	mu     sync.Mutex
	events []string
	warns  []error
}

func (d *recordingDiagnostics) Info(event string, _ logrus.Fields) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDiagnostics) Warn(event string, err error, _ logrus.Fields) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	d.warns = append(d.warns, err)
}

func (d *recordingDiagnostics) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *recordingDiagnostics) Warns() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.warns...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
