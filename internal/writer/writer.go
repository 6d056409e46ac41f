// internal/writer/writer.go
package writer

import (
	"context"
	"log"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// Sink delivers one telemetry snapshot to one egress surface.
// IMPORTANT: delivery is best-effort everywhere; a failing sink is logged
// and retried on the next tick, never escalated.
type Sink interface {
	Name() string
	Publish(snap telemetry.Snapshot) error
}

// Collector assembles the full snapshot at publish time (sensor groups from
// the telemetry store, channels from the channel store, status from the
// engine).
type Collector func() telemetry.Snapshot

// Writer fans the snapshot out to every configured sink on a fixed period.
type Writer struct {
	collect  Collector
	sinks    []Sink
	interval time.Duration
}

// New creates a writer. A zero interval defaults to 20 ms (50 Hz).
func New(collect Collector, sinks []Sink, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Writer{collect: collect, sinks: sinks, interval: interval}
}

// PublishOnce delivers one snapshot to every sink.
func (w *Writer) PublishOnce() {
	snap := w.collect()
	for _, s := range w.sinks {
		if err := s.Publish(snap); err != nil {
			log.Printf("writer: %s: %v", s.Name(), err)
		}
	}
}

// Run starts the ticker loop. One goroutine. No overlap, no retries.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PublishOnce()
		}
	}
}
