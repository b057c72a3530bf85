package goble

import (
	"github.com/go-ble/ble"

	"github.com/ullo-labs/bbelt/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string          { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte   { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int          { return int(a.adv.TxPowerLevel()) }
func (a *BLEAdvertisement) Connectable() bool          { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                  { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string               { return a.adv.Addr().String() }
func (a *BLEAdvertisement) Services() []string         { return uuidStrings(a.adv.Services()) }
func (a *BLEAdvertisement) OverflowService() []string  { return uuidStrings(a.adv.OverflowService()) }
func (a *BLEAdvertisement) SolicitedService() []string { return uuidStrings(a.adv.SolicitedService()) }

func (a *BLEAdvertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	bleServiceData := a.adv.ServiceData()
	result := make([]struct {
		UUID string
		Data []byte
	}, len(bleServiceData))
	for i, sd := range bleServiceData {
		result[i].UUID = sd.UUID.String()
		result[i].Data = sd.Data
	}
	return result
}

// Unwrap returns the underlying ble.Advertisement for use within this package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}

func uuidStrings(uuids []ble.UUID) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = u.String()
	}
	return result
}
