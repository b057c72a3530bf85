// Package config loads bbelt settings from an optional YAML file.
// Defaults come from struct tags; command-line flags override anything
// loaded here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the user's home directory when no
// explicit --config path is given.
const DefaultFileName = ".bbelt.yaml"

// Config mirrors the YAML file layout.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Stream  StreamConfig  `yaml:"stream"`
	LSL     LSLConfig     `yaml:"lsl"`
	Scan    ScanConfig    `yaml:"scan"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// DeviceConfig selects the belt and its data characteristic.
type DeviceConfig struct {
	Address        string `yaml:"address" default:"FB:88:11:1E:90:F3"`
	Characteristic string `yaml:"characteristic" default:"fed1"`
	// ConnectTimeout of 0 blocks until the transport gives up
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StreamConfig names the published LSL stream.
type StreamConfig struct {
	Name string `yaml:"name" default:"ullo_bb"`
	Type string `yaml:"type" default:"breathing_amp"`
}

// LSLConfig places the outlet's listeners.
type LSLConfig struct {
	PortRange     string `yaml:"port_range" default:"16572-16604"`
	DiscoveryPort int    `yaml:"discovery_port" default:"16571"`
}

// ScanConfig tunes the discovery helper.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is non-empty.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig sets the operational log level; empty keeps the quiet
// console default.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in defaults without consulting any file.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path when given, otherwise ~/.bbelt.yaml when present.
// Defaults apply first, so the file only has to name what it changes.
// A missing implicit file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, DefaultFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParsePortRange parses "start-end" (or a bare "port" for a single-port
// range) into inclusive bounds.
func ParsePortRange(s string) (start, end int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty port range")
	}

	first, rest, found := strings.Cut(s, "-")
	start, err = strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	if !found {
		end = start
	} else {
		end, err = strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
		}
	}

	if start < 1 || start > 65535 || end < 1 || end > 65535 {
		return 0, 0, fmt.Errorf("port range %q out of bounds", s)
	}
	if end < start {
		return 0, 0, fmt.Errorf("port range %q ends before it starts", s)
	}
	return start, end, nil
}
