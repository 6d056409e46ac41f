// internal/telemetry/layout.go
package telemetry

// Binary record layout for the shared telemetry file. Offsets are bytes from
// the start of the record and follow natural C alignment; integers and
// floats are written in host byte order. The file is a private channel to
// out-of-process readers on the same host, not a compatibility surface:
// readers validate the total length and nothing else.

const (
	offLinkUp      = 0 // u8, 3 bytes padding after
	offLastReceive = 4 // u32

	offChannels = 8 // 16 x i32

	offPacketsReceived = 72 // u32
	offPacketsSent     = 76 // u32
	offPacketsLost     = 80 // u32, 4 bytes padding after

	offLatitude  = 88  // f64, degrees
	offLongitude = 96  // f64, degrees
	offAltitude  = 104 // f64, metres
	offSpeed     = 112 // f64, km/h

	offVoltage  = 120 // f64, volts
	offCurrent  = 128 // f64, amps
	offCapacity = 136 // f64, mAh

	offRemaining = 144 // u8, 7 bytes padding after

	offRoll  = 152 // f64, degrees
	offPitch = 160 // f64, degrees
	offYaw   = 168 // f64, degrees, [0, 360)

	offRollRaw  = 176 // i16
	offPitchRaw = 178 // i16
	offYawRaw   = 180 // i16, 2 bytes padding after

	// RecordSize is the only thing a reader checks: a read of any other
	// length means "no connection".
	RecordSize = 184
)
