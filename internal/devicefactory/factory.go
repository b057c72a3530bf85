package devicefactory

import (
	"github.com/sirupsen/logrus"

	"github.com/ullo-labs/bbelt/internal/device"
	goble "github.com/ullo-labs/bbelt/internal/device/go-ble"
)

// DeviceFactory creates device.ScanningDevice instances for BLE scanning
// operations. This is a variable so that it can be overridden in tests.
var DeviceFactory = func() (device.ScanningDevice, error) {
	return goble.NewScanner()
}

// NewDevice creates a new BLE device with the specified address.
// This is the primary constructor for creating device instances.
func NewDevice(address string, logger *logrus.Logger) device.Device {
	return goble.NewBLEDevice(address, logger)
}

// NewDeviceFromAdvertisement creates a new BLE device from a device.Advertisement.
// This is used during scanning to create device instances from discovered advertisements.
func NewDeviceFromAdvertisement(adv device.Advertisement, logger *logrus.Logger) device.Device {
	return goble.NewBLEDeviceFromAdvertisement(adv, logger)
}
