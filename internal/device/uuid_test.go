package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ullo-labs/bbelt/internal/bledb"
)

func TestShortenUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit UUID unchanged",
			input:    "2a37",
			expected: "2a37",
		},
		{
			name:     "Eight characters unchanged",
			input:    "00002a37",
			expected: "00002a37",
		},
		{
			name:     "Full 128-bit UUID truncated to first eight",
			input:    "6e400001b5a3f393e0a9e50e24dcca9e",
			expected: "6e400001",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShortenUUID(tt.input))
		})
	}
}

func TestValidateUUID(t *testing.T) {
	t.Run("single UUID is normalized", func(t *testing.T) {
		result, err := ValidateUUID("0x2A37")
		require.NoError(t, err)
		assert.Equal(t, []string{"2a37"}, result)
	})

	t.Run("multiple UUIDs keep their order", func(t *testing.T) {
		result, err := ValidateUUID(
			"180D",
			"0000fed1-0000-1000-8000-00805f9b34fb",
			"6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"180d", "fed1", "6e400001b5a3f393e0a9e50e24dcca9e"}, result)
	})

	t.Run("no arguments is an error", func(t *testing.T) {
		_, err := ValidateUUID()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one UUID")
	})

	t.Run("empty UUID reports its index", func(t *testing.T) {
		_, err := ValidateUUID("2a37", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index 1")
	})
}

// The device package re-exports normalization from bledb; both entry points
// must agree so lookups and subscriptions key on the same form.
func TestNormalizeUUID_MatchesBledb(t *testing.T) {
	inputs := []string{
		"2902",
		"0x180D",
		"0000fed1-0000-1000-8000-00805f9b34fb",
		"6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		"",
	}

	for _, uuid := range inputs {
		assert.Equal(t, bledb.NormalizeUUID(uuid), NormalizeUUID(uuid), "forms MUST agree for %q", uuid)
	}
}
