// internal/telemetry/json.go
package telemetry

import (
	"encoding/json"
	"time"
)

// The JSON document served on /api/telemetry and pushed to the gateway.

type jsonGPS struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	Satellites uint8   `json:"satellites"`
}

type jsonBattery struct {
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Capacity  float64 `json:"capacity"`
	Remaining uint8   `json:"remaining"`
}

type jsonAttitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type jsonAttitudeRaw struct {
	Roll  int16 `json:"roll"`
	Pitch int16 `json:"pitch"`
	Yaw   int16 `json:"yaw"`
}

type jsonDoc struct {
	LinkUp      bool   `json:"linkUp"`
	ActivePort  string `json:"activePort"`
	LastReceive uint32 `json:"lastReceive"`
	Timestamp   string `json:"timestamp"`

	Channels [16]int `json:"channels"`

	PacketsReceived uint32 `json:"packetsReceived"`
	PacketsSent     uint32 `json:"packetsSent"`
	PacketsLost     uint32 `json:"packetsLost"`

	GPS         jsonGPS         `json:"gps"`
	Battery     jsonBattery     `json:"battery"`
	Attitude    jsonAttitude    `json:"attitude"`
	AttitudeRaw jsonAttitudeRaw `json:"attitudeRaw"`

	FlightMode string `json:"flightMode"`
}

// EncodeJSON renders the snapshot as the control-plane telemetry document.
func EncodeJSON(s Snapshot, now time.Time) ([]byte, error) {
	doc := jsonDoc{
		LinkUp:      s.LinkUp,
		ActivePort:  s.ActivePort,
		LastReceive: s.LastReceive,
		Timestamp:   now.Format("15:04:05.000"),

		Channels: s.Channels,

		PacketsReceived: s.PacketsReceived,
		PacketsSent:     s.PacketsSent,
		PacketsLost:     s.PacketsLost,

		GPS: jsonGPS{
			Latitude:   s.GPS.LatitudeDeg(),
			Longitude:  s.GPS.LongitudeDeg(),
			Altitude:   s.GPS.AltitudeM(),
			Speed:      s.GPS.SpeedKmh(),
			Heading:    float64(s.GPS.Heading) / 100,
			Satellites: s.GPS.Satellites,
		},
		Battery: jsonBattery{
			Voltage:   s.Battery.VoltageV(),
			Current:   float64(s.Battery.Current) / 10,
			Capacity:  float64(s.Battery.Capacity),
			Remaining: s.Battery.Remaining,
		},
		Attitude: jsonAttitude{
			Roll:  s.Attitude.Roll(),
			Pitch: s.Attitude.Pitch(),
			Yaw:   s.Attitude.Yaw(),
		},
		AttitudeRaw: jsonAttitudeRaw{
			Roll:  s.Attitude.RollRaw,
			Pitch: s.Attitude.PitchRaw,
			Yaw:   s.Attitude.YawRaw,
		},

		FlightMode: s.FlightMode,
	}
	return json.Marshal(doc)
}
