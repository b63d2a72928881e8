package main

import (
	"errors"
	"fmt"

	"github.com/srg/blepump/internal/link/goble"
	"github.com/srg/blepump/internal/throughput"
)

// Command-level errors
var (
	// ErrVerificationFailed indicates the received stream did not match the pattern
	ErrVerificationFailed = errors.New("pattern verification failed")
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return fmt.Sprintf("Bluetooth is not available on this platform (%v)", err)
	case errors.Is(err, throughput.ErrNotConnected):
		return "peripheral disconnected"
	case errors.Is(err, throughput.ErrConnectionRejected):
		return "peripheral already has a connection"
	default:
		return err.Error()
	}
}
