// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// ---- BRIDGE ----

type BridgeConfig struct {
	Serial    SerialConfig    `yaml:"serial"`
	Link      LinkConfig      `yaml:"link"`
	Send      SendConfig      `yaml:"send"`
	Command   CommandConfig   `yaml:"command"`
	Joystick  JoystickConfig  `yaml:"joystick"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
}

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

type LinkConfig struct {
	PacketTimeoutMs int `yaml:"packet_timeout_ms"`
	// FailsafeMs defaults to 120000: deliberately far beyond the
	// CRSF-typical 1 s, to ride out deep fades on long-range links.
	FailsafeMs      int  `yaml:"failsafe_ms"`
	IgnoreLinkState bool `yaml:"ignore_link_state"`
}

type SendConfig struct {
	PeriodMs int    `yaml:"period_ms"`
	Mode     string `yaml:"mode"` // joystick | manual
}

type CommandConfig struct {
	File string `yaml:"file"`
}

type JoystickConfig struct {
	Device string `yaml:"device"`
}

type TelemetryConfig struct {
	File      string `yaml:"file"`
	PublishMs int    `yaml:"publish_ms"`
	Gateway   string `yaml:"gateway"` // push target; Normalize fills an empty value with http://localhost:8081
	MQTT      string `yaml:"mqtt"`    // broker URL; empty disables the MQTT sink
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

// ---- GATEWAY ----

type GatewayConfig struct {
	Listen    string `yaml:"listen"`
	Bridge    string `yaml:"bridge"` // base URL of the peer bridge
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Load reads the yaml file. An empty path yields an all-defaults config
// (the CLI arguments are then the only input).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
