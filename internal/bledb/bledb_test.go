package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles the UUID
// formats seen in flags, config files, and go-ble output
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit short form",
			input:    "180d",
			expected: "180d",
		},
		{
			name:     "16-bit uppercase",
			input:    "180D",
			expected: "180d",
		},
		{
			name:     "16-bit with 0x prefix",
			input:    "0x180D",
			expected: "180d",
		},
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "0000180d-0000-1000-8000-00805f9b34fb",
			expected: "180d",
		},
		{
			name:     "Full Bluetooth SIG UUID without dashes",
			input:    "0000180d00001000800000805f9b34fb",
			expected: "180d",
		},
		{
			name:     "Custom 128-bit UUID (not SIG base)",
			input:    "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "6e400001b5a3f393e0a9e50e24dcca9e",
		},
		{
			name:     "UUID with braces",
			input:    "{0000180d-0000-1000-8000-00805f9b34fb}",
			expected: "180d",
		},
		{
			name:     "Surrounding whitespace",
			input:    "  2a37 ",
			expected: "2a37",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

// TestNormalizeUUIDs verifies slice normalization preserves order and nil
func TestNormalizeUUIDs(t *testing.T) {
	assert.Nil(t, NormalizeUUIDs(nil), "nil input MUST stay nil")

	got := NormalizeUUIDs([]string{"0x180D", "0000180f-0000-1000-8000-00805f9b34fb", "FED1"})
	assert.Equal(t, []string{"180d", "180f", "fed1"}, got)
}

// TestLookupService verifies service name resolution for short and full forms
func TestLookupService(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{"Heart Rate short form", "180d", "Heart Rate"},
		{"Heart Rate full SIG UUID", "0000180d-0000-1000-8000-00805f9b34fb", "Heart Rate"},
		{"Battery Service", "180f", "Battery Service"},
		{"Vendor service resolves to empty", "fed0", ""},
		{"Unknown UUID resolves to empty", "ffff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupService(tt.uuid))
		})
	}
}

// TestLookupCharacteristic verifies characteristic name resolution
func TestLookupCharacteristic(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		expected string
	}{
		{"Heart Rate Measurement short form", "2a37", "Heart Rate Measurement"},
		{"Heart Rate Measurement full UUID", "00002a37-0000-1000-8000-00805f9b34fb", "Heart Rate Measurement"},
		{"Battery Level", "2a19", "Battery Level"},
		{"Device Name", "2a00", "Device Name"},
		{"Vendor raw-data characteristic resolves to empty", "fed1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupCharacteristic(tt.uuid))
		})
	}
}

// TestLookupDescriptor verifies descriptor name resolution
func TestLookupDescriptor(t *testing.T) {
	assert.Equal(t, "Client Characteristic Configuration", LookupDescriptor("2902"))
	assert.Equal(t, "Client Characteristic Configuration", LookupDescriptor("00002902-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Characteristic User Descriptor", LookupDescriptor("2901"))
	assert.Equal(t, "", LookupDescriptor("2999"))
}
