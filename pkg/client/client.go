// Package client is the measuring side of a throughput link: it connects to a
// throughput peripheral, enables the stream and verifies what arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepump/internal/link/goble"
	"github.com/srg/blepump/internal/throughput"
)

// ErrClosed is returned when the measurement link is already closed
var ErrClosed = errors.New("measurement closed")

// Dialer opens a GATT client connection, usually ble.Device.Dial
type Dialer func(ctx context.Context, addr ble.Addr) (ble.Client, error)

// Options configures a measurement
type Options struct {
	Address        string
	ServiceUUID    ble.UUID
	MTU            int
	ConnectTimeout time.Duration
}

// DefaultOptions returns options for address with the default service
func DefaultOptions(address string, serviceUUID ble.UUID) *Options {
	return &Options{
		Address:        address,
		ServiceUUID:    serviceUUID,
		MTU:            247,
		ConnectTimeout: 30 * time.Second,
	}
}

// Report is a snapshot of a running measurement
type Report struct {
	Address       string                    `json:"address" yaml:"address"`
	MTU           int                       `json:"mtu" yaml:"mtu"`
	Elapsed       time.Duration             `json:"elapsed" yaml:"elapsed"`
	Notifications uint64                    `json:"notifications" yaml:"notifications"`
	Largest       int                       `json:"largest" yaml:"largest"`
	Verifier      throughput.VerifierResult `json:"verifier" yaml:"verifier"`
}

// BytesPerSecond returns the received data rate
func (r Report) BytesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Verifier.Bytes) / r.Elapsed.Seconds()
}

// Measurement is a connected throughput peer
type Measurement struct {
	client  ble.Client
	control *ble.Characteristic
	data    *ble.Characteristic
	address string
	mtu     int
	logger  *logrus.Logger

	mu            sync.Mutex
	verifier      *throughput.PatternVerifier
	notifications uint64
	largest       int
	started       time.Time
	streaming     bool
	closed        bool
}

// Connect dials opts.Address, negotiates the MTU and discovers the throughput service
func Connect(ctx context.Context, dial Dialer, opts *Options, logger *logrus.Logger) (*Measurement, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if dial == nil {
		dial = ble.Dial
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	logger.WithField("address", opts.Address).Info("Connecting to throughput peripheral...")
	client, err := dial(connectCtx, ble.NewAddr(opts.Address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	m := &Measurement{
		client:   client,
		address:  opts.Address,
		mtu:      throughput.DefaultMTU,
		logger:   logger,
		verifier: throughput.NewPatternVerifier(),
	}

	if opts.MTU > throughput.DefaultMTU {
		txMTU, err := client.ExchangeMTU(opts.MTU)
		if err != nil {
			// a peer refusing the exchange keeps the default MTU
			logger.WithError(err).Warn("MTU exchange failed")
		} else {
			m.mtu = txMTU
		}
	}
	logger.WithField("mtu", m.mtu).Debug("MTU negotiated")

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	svc := findService(profile, opts.ServiceUUID)
	if svc == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("throughput service %s not found", opts.ServiceUUID.String())
	}

	for _, char := range svc.Characteristics {
		switch {
		case char.UUID.Equal(goble.ControlCharUUID):
			m.control = char
		case char.UUID.Equal(goble.DataCharUUID):
			m.data = char
		}
	}
	if m.control == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("control characteristic %s not found", goble.ControlCharUUID.String())
	}
	if m.data == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("data characteristic %s not found", goble.DataCharUUID.String())
	}

	logger.WithField("service", svc.UUID.String()).Info("Found throughput service")
	return m, nil
}

func findService(profile *ble.Profile, id ble.UUID) *ble.Service {
	if profile == nil {
		return nil
	}
	for _, svc := range profile.Services {
		if svc.UUID.Equal(id) {
			return svc
		}
	}
	return nil
}

// Start subscribes to the data characteristic and enables streaming
func (m *Measurement) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	if err := m.client.Subscribe(m.data, false, m.handleNotification); err != nil {
		return fmt.Errorf("failed to subscribe to data characteristic: %w", err)
	}

	m.mu.Lock()
	m.started = time.Now()
	m.streaming = true
	m.mu.Unlock()

	if err := m.client.WriteCharacteristic(m.control, throughput.SetStreamingCommand(true), true); err != nil {
		m.mu.Lock()
		m.streaming = false
		m.mu.Unlock()
		if uerr := m.client.Unsubscribe(m.data, false); uerr != nil {
			m.logger.WithError(uerr).Warn("Failed to unsubscribe after enable failure")
		}
		return fmt.Errorf("failed to enable streaming: %w", err)
	}
	return nil
}

// Stop disables streaming and unsubscribes
func (m *Measurement) Stop() error {
	m.mu.Lock()
	if !m.streaming {
		m.mu.Unlock()
		return nil
	}
	m.streaming = false
	m.mu.Unlock()

	var errs []error
	if err := m.client.WriteCharacteristic(m.control, throughput.SetStreamingCommand(false), true); err != nil {
		errs = append(errs, fmt.Errorf("failed to disable streaming: %w", err))
	}
	if err := m.client.Unsubscribe(m.data, false); err != nil {
		errs = append(errs, fmt.Errorf("failed to unsubscribe: %w", err))
	}
	return errors.Join(errs...)
}

// Close drops the connection
func (m *Measurement) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.client.CancelConnection()
}

// Disconnected is closed when the peripheral goes away
func (m *Measurement) Disconnected() <-chan struct{} {
	return m.client.Disconnected()
}

// Report returns the measurement so far
func (m *Measurement) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	var elapsed time.Duration
	if !m.started.IsZero() {
		elapsed = time.Since(m.started)
	}
	return Report{
		Address:       m.address,
		MTU:           m.mtu,
		Elapsed:       elapsed,
		Notifications: m.notifications,
		Largest:       m.largest,
		Verifier:      m.verifier.Result(),
	}
}

func (m *Measurement) handleNotification(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications++
	m.largest = max(m.largest, len(data))
	_, _ = m.verifier.Write(data)
}

// Run streams until ctx is done or the peripheral disconnects, calling progress every interval
func (m *Measurement) Run(ctx context.Context, interval time.Duration, progress func(Report)) (Report, error) {
	if err := m.Start(); err != nil {
		return m.Report(), err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			report := m.Report()
			if err := m.Stop(); err != nil {
				m.logger.WithError(err).Warn("Failed to stop stream")
			}
			return report, nil
		case <-m.Disconnected():
			return m.Report(), throughput.ErrNotConnected
		case <-ticker.C:
			if progress != nil {
				progress(m.Report())
			}
		}
	}
}
