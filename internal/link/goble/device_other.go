//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newDefaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE host stack for %s", ErrUnsupportedPlatform, runtime.GOOS)
}
