package device

import (
	"encoding/binary"
	"fmt"
)

const (
	// UnknownCompanyID is a sentinel value indicating the company ID should be
	// extracted from the raw manufacturer data (first 2 bytes, little-endian).
	// Use this when the manufacturer/vendor is not known in advance.
	UnknownCompanyID uint16 = 0

	// UlloCompanyID is the company identifier the belt firmware places in its
	// advertising payload. The firmware ships the reserved internal-use ID
	// rather than a SIG-registered one.
	UlloCompanyID uint16 = 0xFFFF
)

// ManufacturerDataParser parses company-specific manufacturer data
type ManufacturerDataParser func([]byte) (interface{}, error)

// manufacturerDataParsers maps company IDs to their parser functions
var manufacturerDataParsers = map[uint16]ManufacturerDataParser{
	UlloCompanyID: parseUlloManufacturerData,
}

// ParseManufacturerData parses BLE manufacturer data for a specific company.
//
// Parameters:
//   - companyID: The Bluetooth SIG assigned company identifier. If UnknownCompanyID (0),
//     the company ID will be extracted from the first 2 bytes of rawData (little-endian).
//     This is useful when the manufacturer is not known in advance.
//   - rawData: The raw manufacturer-specific data bytes
//
// Returns:
//   - Parsed manufacturer data (type depends on company), or nil for unknown companies
//   - Error if data is malformed or too short
//   - (nil, nil) for unknown/unsupported company IDs (not an error)
func ParseManufacturerData(companyID uint16, rawData []byte) (interface{}, error) {
	var id uint16

	if companyID == UnknownCompanyID {
		// Company ID unknown - attempt extraction from raw data (BLE convention)
		if len(rawData) < 2 {
			return nil, fmt.Errorf("manufacturer data too short: %d bytes", len(rawData))
		}
		id = binary.LittleEndian.Uint16(rawData[0:2])
	} else {
		// Company ID known - use provided value
		id = companyID
	}

	parser, exists := manufacturerDataParsers[id]
	if !exists {
		// Unknown company ID, return nil (not an error)
		return nil, nil
	}

	return parser(rawData)
}

// IsParsableManufacturerData returns true if a parser exists for the company ID
func IsParsableManufacturerData(companyID uint16) bool {
	_, exists := manufacturerDataParsers[companyID]
	return exists
}

// -----------------------------------------------------------------------------
// Ullo breathing-belt manufacturer data
// -----------------------------------------------------------------------------

// BeltModel represents known belt hardware models
type BeltModel uint8

const (
	BeltModelProto BeltModel = 0x00 // pre-production prototype
	BeltModelRevA  BeltModel = 0x01 // first production run
	BeltModelRevB  BeltModel = 0x02 // current production run
)

// String returns human-readable model name
func (m BeltModel) String() string {
	switch m {
	case BeltModelProto:
		return "Prototype"
	case BeltModelRevA:
		return "Belt Rev A"
	case BeltModelRevB:
		return "Belt Rev B"
	default:
		return fmt.Sprintf("Unknown (0x%02X)", uint8(m))
	}
}

// UlloManufacturerData represents the parsed belt advertising block
//
// Format (8 bytes):
//   - Bytes 0-1: Company ID (little-endian)
//   - Byte 2:    Model (0x00 = prototype, 0x01 = rev A, 0x02 = rev B)
//   - Byte 3:    Hardware Version (high nibble = major, low nibble = minor)
//   - Bytes 4-6: Firmware Version (Major.Minor.Patch)
//   - Byte 7:    Battery level (percent, 0xFF = unknown)
type UlloManufacturerData struct {
	Model           BeltModel
	HardwareVersion string // e.g., "1.0"
	FirmwareVersion string // e.g., "2.1.3"
	BatteryPercent  int    // -1 when the firmware reports unknown
}

// parseUlloManufacturerData parses the belt advertising block
func parseUlloManufacturerData(data []byte) (interface{}, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("ullo manufacturer data too short: %d bytes, expected 8", len(data))
	}

	model := BeltModel(data[2])

	hwMajor := (data[3] >> 4) & 0x0F
	hwMinor := data[3] & 0x0F
	hardwareVersion := fmt.Sprintf("%d.%d", hwMajor, hwMinor)

	firmwareVersion := fmt.Sprintf("%d.%d.%d", data[4], data[5], data[6])

	battery := int(data[7])
	if data[7] == 0xFF {
		battery = -1
	}

	return &UlloManufacturerData{
		Model:           model,
		HardwareVersion: hardwareVersion,
		FirmwareVersion: firmwareVersion,
		BatteryPercent:  battery,
	}, nil
}
