package goble

import (
	"github.com/go-ble/ble"

	"github.com/ullo-labs/bbelt/internal/bledb"
	"github.com/ullo-labs/bbelt/internal/device"
)

// ----------------------------
// BLE Characteristic
// ----------------------------

// BLECharacteristic wraps a discovered ble.Characteristic with normalized
// metadata. The live handle (BLEChar) is what subscribe/unsubscribe calls
// are issued against.
type BLECharacteristic struct {
	uuid       string
	knownName  string
	properties device.Properties

	// BLEChar is the live go-ble handle from profile discovery.
	BLEChar *ble.Characteristic
}

// NewCharacteristic creates a BLECharacteristic from a discovered handle.
func NewCharacteristic(bleChar *ble.Characteristic) *BLECharacteristic {
	rawUUID := bleChar.UUID.String()
	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(rawUUID),
		knownName:  bledb.LookupCharacteristic(rawUUID),
		properties: NewProperties(bleChar.Property),
		BLEChar:    bleChar,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

func (c *BLECharacteristic) GetProperties() device.Properties {
	return c.properties
}

// supportsNotify reports whether the characteristic advertises the Notify property.
func (c *BLECharacteristic) supportsNotify() bool {
	return c.BLEChar != nil && c.BLEChar.Property&ble.CharNotify != 0
}

// supportsIndicate reports whether the characteristic advertises the Indicate property.
func (c *BLECharacteristic) supportsIndicate() bool {
	return c.BLEChar != nil && c.BLEChar.Property&ble.CharIndicate != 0
}
