// internal/telemetry/snapshot.go
package telemetry

import "github.com/fobos-uav/crsf-bridge/internal/crsf"

// Snapshot aggregates the most recent decoded value of every sensor group
// plus link status. It contains no logic. The link engine is the only
// writer; everything else reads copies.
type Snapshot struct {
	LinkUp      bool
	LastReceive uint32 // milliseconds on the engine clock
	ActivePort  string

	Channels [crsf.NumChannels]int

	PacketsReceived uint32
	PacketsSent     uint32
	PacketsLost     uint32

	GPS        crsf.GPS
	Battery    crsf.Battery
	Attitude   crsf.Attitude
	LinkStats  crsf.LinkStatistics
	FlightMode string
}
