package goble

import (
	"context"

	"github.com/go-ble/ble"

	"github.com/ullo-labs/bbelt/internal/device"
)

// bleScanner wraps ble.Device to implement device.ScanningDevice
type bleScanner struct {
	dev ble.Device
}

// Scan converts go-ble advertisements to device.Advertisement before handing
// them to the caller's handler.
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := s.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// NewScanner creates a device.ScanningDevice for BLE scanning operations.
func NewScanner() (device.ScanningDevice, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleScanner{dev: dev}, nil
}
