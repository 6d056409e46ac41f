// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	b := &cfg.Bridge

	if b.Serial.Device == "" {
		b.Serial.Device = "/dev/ttyAMA0"
	}
	if b.Serial.Baud == 0 {
		b.Serial.Baud = 420000
	}
	if b.Serial.ReadTimeoutMs == 0 {
		b.Serial.ReadTimeoutMs = 100
	}

	if b.Link.PacketTimeoutMs == 0 {
		b.Link.PacketTimeoutMs = 100
	}
	if b.Link.FailsafeMs == 0 {
		b.Link.FailsafeMs = 120000
	}

	if b.Send.PeriodMs == 0 {
		b.Send.PeriodMs = 10
	}
	if b.Send.Mode == "" {
		b.Send.Mode = "manual"
	}

	if b.Command.File == "" {
		b.Command.File = "/tmp/crsf_command.txt"
	}
	if b.Joystick.Device == "" {
		b.Joystick.Device = "/dev/input/js0"
	}

	if b.Telemetry.File == "" {
		b.Telemetry.File = "/tmp/crsf_telemetry.dat"
	}
	if b.Telemetry.PublishMs == 0 {
		b.Telemetry.PublishMs = 20
	}
	if b.Telemetry.Gateway == "" {
		b.Telemetry.Gateway = "http://localhost:8081"
	}

	if b.API.Listen == "" {
		b.API.Listen = ":8082"
	}

	g := &cfg.Gateway
	if g.Listen == "" {
		g.Listen = ":8081"
	}
	if g.Bridge == "" {
		g.Bridge = "http://localhost:8082"
	}
	if g.TimeoutMs == 0 {
		g.TimeoutMs = 2000
	}
}
