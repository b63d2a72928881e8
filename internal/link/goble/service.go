package goble

import (
	"github.com/go-ble/ble"
)

var (
	// ControlCharUUID accepts control writes without response
	ControlCharUUID = ble.UUID16(0x1000)

	// DataCharUUID carries the notification stream; go-ble adds its CCC descriptor
	DataCharUUID = ble.UUID16(0x1001)
)

// NewService declares the throughput service. Control writes go to write,
// notification subscriptions to notify.
func NewService(serviceUUID ble.UUID, write ble.WriteHandlerFunc, notify ble.NotifyHandlerFunc) *ble.Service {
	svc := ble.NewService(serviceUUID)

	control := svc.NewCharacteristic(ControlCharUUID)
	control.HandleWrite(write)
	// write-without-response only, no read
	control.Property = ble.CharWriteNR

	data := svc.NewCharacteristic(DataCharUUID)
	data.HandleNotify(notify)

	return svc
}
