package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bbelt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Point the implicit lookup at an empty home
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "FB:88:11:1E:90:F3", cfg.Device.Address)
	assert.Equal(t, "fed1", cfg.Device.Characteristic)
	assert.Equal(t, time.Duration(0), cfg.Device.ConnectTimeout)
	assert.Equal(t, "ullo_bb", cfg.Stream.Name)
	assert.Equal(t, "breathing_amp", cfg.Stream.Type)
	assert.Equal(t, "16572-16604", cfg.LSL.PortRange)
	assert.Equal(t, 16571, cfg.LSL.DiscoveryPort)
	assert.Equal(t, 10*time.Second, cfg.Scan.Timeout)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Empty(t, cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
device:
  address: "AA:BB:CC:DD:EE:FF"
  connect_timeout: 45s
stream:
  name: lab_belt
lsl:
  port_range: "17572-17580"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Device.Address)
	assert.Equal(t, 45*time.Second, cfg.Device.ConnectTimeout)
	assert.Equal(t, "lab_belt", cfg.Stream.Name)
	assert.Equal(t, "17572-17580", cfg.LSL.PortRange)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults
	assert.Equal(t, "fed1", cfg.Device.Characteristic)
	assert.Equal(t, "breathing_amp", cfg.Stream.Type)
	assert.Equal(t, 10*time.Second, cfg.Scan.Timeout)
}

func TestLoad_ImplicitHomeFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, DefaultFileName),
		[]byte("scan:\n  timeout: 3s\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Scan.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "device: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		start     int
		end       int
		expectErr bool
	}{
		{
			name:  "standard range",
			input: "16572-16604",
			start: 16572,
			end:   16604,
		},
		{
			name:  "single port",
			input: "16580",
			start: 16580,
			end:   16580,
		},
		{
			name:  "whitespace tolerated",
			input: " 16572 - 16604 ",
			start: 16572,
			end:   16604,
		},
		{
			name:      "empty",
			input:     "",
			expectErr: true,
		},
		{
			name:      "not a number",
			input:     "alpha-omega",
			expectErr: true,
		},
		{
			name:      "inverted range",
			input:     "16604-16572",
			expectErr: true,
		},
		{
			name:      "port zero",
			input:     "0-100",
			expectErr: true,
		},
		{
			name:      "port too large",
			input:     "65530-65540",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParsePortRange(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
