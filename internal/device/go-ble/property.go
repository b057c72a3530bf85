package goble

import (
	"github.com/go-ble/ble"
	"github.com/ullo-labs/bbelt/internal/device"
)

// BLEProperty represents a single BLE characteristic property with its bit flag value and human-readable name.
// It implements the Property interface.
type BLEProperty struct {
	value ble.Property
	name  string
}

// Value returns the bit flag value of the property.
func (p *BLEProperty) Value() int {
	return int(p.value)
}

// KnownName returns the human-readable name of the property.
func (p *BLEProperty) KnownName() string {
	return p.name
}

// BLEProperties represents a collection of BLE characteristic properties.
// It implements the Properties interface and provides structured access to individual properties.
type BLEProperties struct {
	broadcast                 *BLEProperty
	read                      *BLEProperty
	writeWithoutResponse      *BLEProperty
	write                     *BLEProperty
	notify                    *BLEProperty
	indicate                  *BLEProperty
	authenticatedSignedWrites *BLEProperty
	extendedProperties        *BLEProperty
}

// NewProperties creates a Properties instance from ble.Property bit flags.
func NewProperties(p ble.Property) device.Properties {
	props := &BLEProperties{}

	set := func(flag ble.Property, name string) *BLEProperty {
		if p&flag == 0 {
			return nil
		}
		return &BLEProperty{value: flag, name: name}
	}

	props.broadcast = set(ble.CharBroadcast, "Broadcast")
	props.read = set(ble.CharRead, "Read")
	props.writeWithoutResponse = set(ble.CharWriteNR, "WriteWithoutResponse")
	props.write = set(ble.CharWrite, "Write")
	props.notify = set(ble.CharNotify, "Notify")
	props.indicate = set(ble.CharIndicate, "Indicate")
	props.authenticatedSignedWrites = set(ble.CharSignedWrite, "AuthenticatedSignedWrites")
	props.extendedProperties = set(ble.CharExtended, "ExtendedProperties")

	return props
}

// propertyOrNil converts an absent property to an untyped nil interface.
func propertyOrNil(p *BLEProperty) device.Property {
	if p == nil {
		return nil
	}
	return p
}

func (p *BLEProperties) Broadcast() device.Property {
	return propertyOrNil(p.broadcast)
}

func (p *BLEProperties) Read() device.Property {
	return propertyOrNil(p.read)
}

func (p *BLEProperties) Write() device.Property {
	return propertyOrNil(p.write)
}

func (p *BLEProperties) WriteWithoutResponse() device.Property {
	return propertyOrNil(p.writeWithoutResponse)
}

func (p *BLEProperties) Notify() device.Property {
	return propertyOrNil(p.notify)
}

func (p *BLEProperties) Indicate() device.Property {
	return propertyOrNil(p.indicate)
}

func (p *BLEProperties) AuthenticatedSignedWrites() device.Property {
	return propertyOrNil(p.authenticatedSignedWrites)
}

func (p *BLEProperties) ExtendedProperties() device.Property {
	return propertyOrNil(p.extendedProperties)
}
