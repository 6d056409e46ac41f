// internal/telemetry/store.go
package telemetry

import (
	"sync"

	"github.com/fobos-uav/crsf-bridge/internal/crsf"
)

// Store is the single-writer / many-reader home of the sensor state.
// Updates are field-scoped: each decoded frame overwrites only the group it
// carries. Readers always get a whole-record copy; there is no field-level
// tearing within one update, and no ordering guarantee across groups.
type Store struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewStore() *Store { return &Store{} }

func (s *Store) SetGPS(g crsf.GPS) {
	s.mu.Lock()
	s.snap.GPS = g
	s.mu.Unlock()
}

func (s *Store) SetBattery(b crsf.Battery) {
	s.mu.Lock()
	s.snap.Battery = b
	s.mu.Unlock()
}

func (s *Store) SetAttitude(a crsf.Attitude) {
	s.mu.Lock()
	s.snap.Attitude = a
	s.mu.Unlock()
}

func (s *Store) SetLinkStats(ls crsf.LinkStatistics) {
	s.mu.Lock()
	s.snap.LinkStats = ls
	s.mu.Unlock()
}

func (s *Store) SetFlightMode(mode string) {
	s.mu.Lock()
	s.snap.FlightMode = mode
	s.mu.Unlock()
}

// Get returns a consistent copy of the whole record.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
