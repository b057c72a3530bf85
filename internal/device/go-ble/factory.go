package goble

import "github.com/go-ble/ble"

// DeviceFactory creates ble.Device instances (can be overridden in tests).
// The default delegates to the platform HCI/CoreBluetooth implementation
// selected at build time.
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}
