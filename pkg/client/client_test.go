package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepump/internal/link/goble"
	"github.com/srg/blepump/internal/throughput"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var testServiceUUID = ble.MustParse("1fb3e464-54bd-4af8-a745-4bde4136ecf4")

// MockClient is a testify mock of ble.Client
type MockClient struct {
	ble.Client
	mock.Mock
	handler ble.NotificationHandler
	gone    chan struct{}
}

func (m *MockClient) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	m.handler = h
	return m.Called(c, ind, h).Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	return m.gone
}

func throughputProfile() *ble.Profile {
	svc := &ble.Service{UUID: testServiceUUID}
	svc.Characteristics = []*ble.Characteristic{
		{UUID: goble.ControlCharUUID, Property: ble.CharWriteNR},
		{UUID: goble.DataCharUUID, Property: ble.CharNotify},
	}
	return &ble.Profile{Services: []*ble.Service{svc}}
}

type ClientSuite struct {
	suite.Suite
	client  *MockClient
	profile *ble.Profile
	opts    *Options
	logger  *logrus.Logger
}

func (s *ClientSuite) SetupTest() {
	s.client = &MockClient{gone: make(chan struct{})}
	s.profile = throughputProfile()
	s.opts = DefaultOptions("aa:bb:cc:dd:ee:ff", testServiceUUID)
	s.opts.ConnectTimeout = time.Second
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.PanicLevel)
}

func (s *ClientSuite) dial(_ context.Context, addr ble.Addr) (ble.Client, error) {
	s.Equal("aa:bb:cc:dd:ee:ff", addr.String())
	return s.client, nil
}

func (s *ClientSuite) connect() *Measurement {
	s.client.On("ExchangeMTU", 247).Return(185, nil)
	s.client.On("DiscoverProfile", true).Return(s.profile, nil)

	m, err := Connect(context.Background(), s.dial, s.opts, s.logger)
	s.Require().NoError(err)
	return m
}

func (s *ClientSuite) TestConnectNegotiatesMTU() {
	m := s.connect()
	s.Equal(185, m.Report().MTU)
	s.Equal(goble.ControlCharUUID, m.control.UUID)
	s.Equal(goble.DataCharUUID, m.data.UUID)
}

func (s *ClientSuite) TestConnectKeepsDefaultMTUOnExchangeFailure() {
	s.client.On("ExchangeMTU", 247).Return(0, errors.New("request not supported"))
	s.client.On("DiscoverProfile", true).Return(s.profile, nil)

	m, err := Connect(context.Background(), s.dial, s.opts, s.logger)
	s.Require().NoError(err)
	s.Equal(throughput.DefaultMTU, m.Report().MTU)
}

func (s *ClientSuite) TestConnectWithoutService() {
	s.client.On("ExchangeMTU", 247).Return(247, nil)
	s.client.On("DiscoverProfile", true).Return(&ble.Profile{}, nil)
	s.client.On("CancelConnection").Return(nil)

	_, err := Connect(context.Background(), s.dial, s.opts, s.logger)
	s.ErrorContains(err, "service")
	s.client.AssertCalled(s.T(), "CancelConnection")
}

func (s *ClientSuite) TestConnectWithoutDataCharacteristic() {
	s.profile.Services[0].Characteristics = s.profile.Services[0].Characteristics[:1]
	s.client.On("ExchangeMTU", 247).Return(247, nil)
	s.client.On("DiscoverProfile", true).Return(s.profile, nil)
	s.client.On("CancelConnection").Return(nil)

	_, err := Connect(context.Background(), s.dial, s.opts, s.logger)
	s.ErrorContains(err, "data characteristic")
}

func (s *ClientSuite) TestDialFailure() {
	dial := func(context.Context, ble.Addr) (ble.Client, error) {
		return nil, errors.New("connection timed out")
	}
	_, err := Connect(context.Background(), dial, s.opts, s.logger)
	s.ErrorContains(err, "failed to connect")
}

func (s *ClientSuite) TestStartStopWritesCommands() {
	m := s.connect()
	s.client.On("Subscribe", m.data, false, mock.Anything).Return(nil)
	s.client.On("WriteCharacteristic", m.control, []byte{0x01, 0x01}, true).Return(nil).Once()
	s.client.On("WriteCharacteristic", m.control, []byte{0x01, 0x00}, true).Return(nil).Once()
	s.client.On("Unsubscribe", m.data, false).Return(nil)

	s.Require().NoError(m.Start())
	s.Require().NoError(m.Stop())
	// second stop is a no-op
	s.Require().NoError(m.Stop())

	s.client.AssertExpectations(s.T())
}

func (s *ClientSuite) TestStartUnsubscribesWhenEnableFails() {
	m := s.connect()
	s.client.On("Subscribe", m.data, false, mock.Anything).Return(nil)
	s.client.On("WriteCharacteristic", m.control, []byte{0x01, 0x01}, true).Return(errors.New("write failed"))
	s.client.On("Unsubscribe", m.data, false).Return(nil).Once()

	_, err := m.Run(context.Background(), time.Hour, nil)
	s.ErrorContains(err, "failed to enable streaming")
	s.client.AssertCalled(s.T(), "Unsubscribe", m.data, false)

	// nothing left to stop
	s.NoError(m.Stop())
	s.client.AssertNumberOfCalls(s.T(), "Unsubscribe", 1)
	s.client.AssertNotCalled(s.T(), "WriteCharacteristic", m.control, []byte{0x01, 0x00}, true)
}

func (s *ClientSuite) TestNotificationsAreVerified() {
	m := s.connect()
	s.client.On("Subscribe", m.data, false, mock.Anything).Return(nil)
	s.client.On("WriteCharacteristic", m.control, mock.Anything, true).Return(nil)
	s.Require().NoError(m.Start())

	gen := throughput.NewPatternGenerator(1000)
	for range 20 {
		s.client.handler(gen.NextBuffer(182))
	}

	report := m.Report()
	s.Equal(uint64(20), report.Notifications)
	s.Equal(182, report.Largest)
	s.True(report.Verifier.OK())
	s.Equal(uint64(20*182), report.Verifier.Bytes)
}

func (s *ClientSuite) TestRunStopsOnDisconnect() {
	m := s.connect()
	s.client.On("Subscribe", m.data, false, mock.Anything).Return(nil)
	s.client.On("WriteCharacteristic", m.control, mock.Anything, true).Return(nil)

	close(s.client.gone)
	_, err := m.Run(context.Background(), time.Hour, nil)
	s.ErrorIs(err, throughput.ErrNotConnected)
}

func (s *ClientSuite) TestRunStopsOnCancel() {
	m := s.connect()
	s.client.On("Subscribe", m.data, false, mock.Anything).Return(nil)
	s.client.On("WriteCharacteristic", m.control, mock.Anything, true).Return(nil)
	s.client.On("Unsubscribe", m.data, false).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var ticks int
	_, err := m.Run(ctx, 5*time.Millisecond, func(Report) { ticks++ })
	s.NoError(err)
	s.Positive(ticks)
	s.client.AssertCalled(s.T(), "WriteCharacteristic", m.control, []byte{0x01, 0x00}, true)
}

func (s *ClientSuite) TestCloseIsIdempotent() {
	m := s.connect()
	s.client.On("CancelConnection").Return(nil).Once()

	s.NoError(m.Close())
	s.NoError(m.Close())
	s.ErrorIs(m.Start(), ErrClosed)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func TestReportBytesPerSecond(t *testing.T) {
	r := Report{Elapsed: 2 * time.Second}
	r.Verifier.Bytes = 1000
	assert.InDelta(t, 500.0, r.BytesPerSecond(), 0.001)
	assert.Zero(t, Report{}.BytesPerSecond())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions("addr", testServiceUUID)
	require.NotNil(t, opts)
	assert.Equal(t, 247, opts.MTU)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
}
