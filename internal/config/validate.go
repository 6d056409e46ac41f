// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	b := &cfg.Bridge

	if b.Serial.Baud < 0 {
		return fmt.Errorf("config: serial.baud %d must not be negative", b.Serial.Baud)
	}
	if b.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("config: serial.read_timeout_ms %d must not be negative", b.Serial.ReadTimeoutMs)
	}

	if b.Link.PacketTimeoutMs < 0 {
		return fmt.Errorf("config: link.packet_timeout_ms %d must not be negative", b.Link.PacketTimeoutMs)
	}
	if b.Link.FailsafeMs < 0 {
		return fmt.Errorf("config: link.failsafe_ms %d must not be negative", b.Link.FailsafeMs)
	}

	if b.Send.PeriodMs < 0 {
		return fmt.Errorf("config: send.period_ms %d must not be negative", b.Send.PeriodMs)
	}
	switch b.Send.Mode {
	case "", "joystick", "manual":
	default:
		return fmt.Errorf("config: send.mode %q must be joystick or manual", b.Send.Mode)
	}

	if b.Telemetry.PublishMs < 0 {
		return fmt.Errorf("config: telemetry.publish_ms %d must not be negative", b.Telemetry.PublishMs)
	}
	if b.Telemetry.MQTT != "" {
		u, err := url.Parse(b.Telemetry.MQTT)
		if err != nil {
			return fmt.Errorf("config: telemetry.mqtt: %v", err)
		}
		switch u.Scheme {
		case "", "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		default:
			return fmt.Errorf("config: telemetry.mqtt scheme %q not supported", u.Scheme)
		}
	}

	if cfg.Gateway.TimeoutMs < 0 {
		return fmt.Errorf("config: gateway.timeout_ms %d must not be negative", cfg.Gateway.TimeoutMs)
	}

	return nil
}
