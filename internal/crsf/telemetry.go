// internal/crsf/telemetry.go
package crsf

import "errors"

// Telemetry payload parsers. All multi-byte wire integers are big-endian and
// are read byte-by-byte; nothing here aliases through raw memory.

var errShortPayload = errors.New("crsf: payload too short")

// ---- GPS ----

// GPS is the decoded GPS frame, raw wire units.
type GPS struct {
	Latitude    int32  // degrees * 1e7
	Longitude   int32  // degrees * 1e7
	GroundSpeed uint16 // deci-km/h
	Heading     uint16 // centidegrees
	Altitude    uint16 // metres + 1000 offset
	Satellites  uint8
}

const gpsPayloadLen = 15

func ParseGPS(p []byte) (GPS, error) {
	if len(p) < gpsPayloadLen {
		return GPS{}, errShortPayload
	}
	return GPS{
		Latitude:    int32(uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])),
		Longitude:   int32(uint32(p[4])<<24 | uint32(p[5])<<16 | uint32(p[6])<<8 | uint32(p[7])),
		GroundSpeed: uint16(p[8])<<8 | uint16(p[9]),
		Heading:     uint16(p[10])<<8 | uint16(p[11]),
		Altitude:    uint16(p[12])<<8 | uint16(p[13]),
		Satellites:  p[14],
	}, nil
}

// LatitudeDeg and LongitudeDeg convert the raw 1e7-scaled values to degrees.
func (g GPS) LatitudeDeg() float64  { return float64(g.Latitude) / 1e7 }
func (g GPS) LongitudeDeg() float64 { return float64(g.Longitude) / 1e7 }

// AltitudeM removes the wire offset.
func (g GPS) AltitudeM() float64 { return float64(g.Altitude) - 1000 }

// SpeedKmh converts deci-km/h to km/h.
func (g GPS) SpeedKmh() float64 { return float64(g.GroundSpeed) / 10 }

// ---- BATTERY ----

// Battery is the decoded battery sensor frame, raw wire units.
type Battery struct {
	Voltage   uint16 // centivolts
	Current   uint16 // deci-amps
	Capacity  uint32 // mAh, 24-bit on the wire
	Remaining uint8  // percent
}

const batteryPayloadLen = 8

func ParseBattery(p []byte) (Battery, error) {
	if len(p) < batteryPayloadLen {
		return Battery{}, errShortPayload
	}
	return Battery{
		Voltage:   uint16(p[0])<<8 | uint16(p[1]),
		Current:   uint16(p[2])<<8 | uint16(p[3]),
		Capacity:  uint32(p[4])<<16 | uint32(p[5])<<8 | uint32(p[6]),
		Remaining: p[7],
	}, nil
}

// VoltageV converts centivolts to volts.
func (b Battery) VoltageV() float64 { return float64(b.Voltage) / 100 }

// ---- ATTITUDE ----

// Attitude carries the three raw wire angles.
//
// On-wire order is bytes 0-1 pitch, 2-3 roll, 4-5 yaw. That is what current
// Betaflight/iNAV firmware emits and it differs from the published CRSF
// layout (roll first); verify against the flight controller in use before
// trusting the roll/pitch split.
type Attitude struct {
	PitchRaw int16
	RollRaw  int16
	YawRaw   int16
}

const attitudePayloadLen = 6

// attitudeScale converts raw wire units to degrees. Empirical: CRSF
// documentation says centidegrees but observed firmware does not match it.
const attitudeScale = 175.0

func ParseAttitude(p []byte) (Attitude, error) {
	if len(p) < attitudePayloadLen {
		return Attitude{}, errShortPayload
	}
	return Attitude{
		PitchRaw: int16(uint16(p[0])<<8 | uint16(p[1])),
		RollRaw:  int16(uint16(p[2])<<8 | uint16(p[3])),
		YawRaw:   int16(uint16(p[4])<<8 | uint16(p[5])),
	}, nil
}

func (a Attitude) Roll() float64  { return float64(a.RollRaw) / attitudeScale }
func (a Attitude) Pitch() float64 { return float64(a.PitchRaw) / attitudeScale }

// Yaw returns degrees normalised into [0, 360).
func (a Attitude) Yaw() float64 {
	deg := float64(a.YawRaw) / attitudeScale
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// ---- LINK STATISTICS ----

// LinkStatistics is the 10-byte wire structure, field for field.
type LinkStatistics struct {
	UplinkRSSI1         uint8
	UplinkRSSI2         uint8
	UplinkLinkQuality   uint8
	UplinkSNR           int8
	ActiveAntenna       uint8
	RFMode              uint8
	UplinkTXPower       uint8
	DownlinkRSSI        uint8
	DownlinkLinkQuality uint8
	DownlinkSNR         int8
}

const linkStatsPayloadLen = 10

func ParseLinkStatistics(p []byte) (LinkStatistics, error) {
	if len(p) < linkStatsPayloadLen {
		return LinkStatistics{}, errShortPayload
	}
	return LinkStatistics{
		UplinkRSSI1:         p[0],
		UplinkRSSI2:         p[1],
		UplinkLinkQuality:   p[2],
		UplinkSNR:           int8(p[3]),
		ActiveAntenna:       p[4],
		RFMode:              p[5],
		UplinkTXPower:       p[6],
		DownlinkRSSI:        p[7],
		DownlinkLinkQuality: p[8],
		DownlinkSNR:         int8(p[9]),
	}, nil
}

// ---- FLIGHT MODE ----

// ParseFlightMode returns the ASCII mode string, stopping at the first NUL.
func ParseFlightMode(p []byte) string {
	for i, b := range p {
		if b == 0 {
			return string(p[:i])
		}
	}
	return string(p)
}
