// internal/link/engine.go
package link

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/channels"
	"github.com/fobos-uav/crsf-bridge/internal/crsf"
	"github.com/fobos-uav/crsf-bridge/internal/serial"
	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// readBurst bounds how many bytes one Step consumes so the receive loop
// cannot starve the timers behind a babbling wire.
const readBurst = 32

// Events is the capability set invoked from inside the receive step.
// Any handler may be nil. Dispatch is synchronous.
type Events struct {
	OnLinkUp   func()
	OnLinkDown func()
	OnChannels func()
}

// Config holds the engine timing and policy knobs.
type Config struct {
	// PacketTimeout flushes a stalled partial frame from the buffer.
	PacketTimeout time.Duration
	// Failsafe declares the link down after this much total silence.
	// Deliberately generous (two minutes) to ride out deep fades.
	Failsafe time.Duration
	// IgnoreLinkState permits transmission while the link is down,
	// for bench work without a live receiver.
	IgnoreLinkState bool
}

// Engine owns the RX buffer and drives frame decoding for one serial link.
// The rx fields are touched only by the goroutine calling Step; the mutex
// covers the lifecycle state shared with the transmit and publisher sides.
type Engine struct {
	port   serial.Port
	store  *channels.Store
	telem  *telemetry.Store
	events Events
	cfg    Config

	now   func() time.Time
	start time.Time

	rxBuf [crsf.MaxFrameSize]byte
	rxLen int

	mu           sync.Mutex
	lastReceive  time.Time
	lastChannels time.Time
	linkUp       bool
	received     uint32
	sent         uint32
	lost         uint32
}

// Status is the engine-side slice of the telemetry snapshot.
type Status struct {
	LinkUp          bool
	LastReceive     uint32 // engine clock, milliseconds
	PacketsReceived uint32
	PacketsSent     uint32
	PacketsLost     uint32
}

// New creates an engine over an opened (or openable) port.
func New(port serial.Port, store *channels.Store, telem *telemetry.Store, events Events, cfg Config) *Engine {
	if cfg.PacketTimeout <= 0 {
		cfg.PacketTimeout = 100 * time.Millisecond
	}
	if cfg.Failsafe <= 0 {
		cfg.Failsafe = 120 * time.Second
	}
	e := &Engine{
		port:   port,
		store:  store,
		telem:  telem,
		events: events,
		cfg:    cfg,
		now:    time.Now,
	}
	e.start = e.now()
	return e
}

// Step runs one receive iteration: a bounded read burst with in-place frame
// consumption, then the packet-timeout and failsafe timers. It blocks at
// most one read timeout inside ReadByte, which is what lets a single
// receive thread breathe even in total silence.
func (e *Engine) Step() error {
	var readErr error

	for i := 0; i < readBurst; i++ {
		b, ok, err := e.port.ReadByte()
		if err != nil {
			readErr = err
			break
		}
		if !ok {
			break
		}

		e.mu.Lock()
		e.lastReceive = e.now()
		e.mu.Unlock()

		if e.rxLen == len(e.rxBuf) {
			e.rxLen = 0
		}
		e.rxBuf[e.rxLen] = b
		e.rxLen++
		e.consume()
	}

	e.checkPacketTimeout()
	e.checkLinkDown()
	return readErr
}

// consume repeatedly takes frames off the front of the buffer.
// A bad declared length shifts one byte (resync on the next candidate sync
// address); a bad CRC discards the whole suspected frame.
func (e *Engine) consume() {
	for {
		if e.rxLen < 2 {
			return
		}
		l := int(e.rxBuf[1])
		if l < crsf.MinFrameLen || l > crsf.MaxFrameLen {
			e.shift(1)
			continue
		}
		if e.rxLen < l+2 {
			return
		}
		if crsf.CRC8(e.rxBuf[2:l+1]) == e.rxBuf[l+1] {
			e.dispatch(e.rxBuf[0], e.rxBuf[2], e.rxBuf[3:l+1])
		} else {
			e.mu.Lock()
			e.lost++
			e.mu.Unlock()
		}
		e.shift(l + 2)
	}
}

func (e *Engine) shift(cnt int) {
	if cnt >= e.rxLen {
		e.rxLen = 0
		return
	}
	copy(e.rxBuf[:], e.rxBuf[cnt:e.rxLen])
	e.rxLen -= cnt
}

// dispatch routes one CRC-valid frame. Only frames addressed to the flight
// controller are handled; unknown types are dropped without complaint.
func (e *Engine) dispatch(addr, typ byte, payload []byte) {
	if addr != crsf.AddrFlightController {
		return
	}

	e.mu.Lock()
	e.received++
	e.mu.Unlock()

	switch typ {
	case crsf.TypeRCChannels:
		if len(payload) < crsf.ChannelsPayloadLen {
			return
		}
		var p [crsf.ChannelsPayloadLen]byte
		copy(p[:], payload)
		us := crsf.UnpackChannels(p)
		for i, v := range us {
			e.store.Set(i+1, v)
		}

		e.mu.Lock()
		rising := !e.linkUp
		e.linkUp = true
		e.lastChannels = e.now()
		e.mu.Unlock()

		if rising && e.events.OnLinkUp != nil {
			e.events.OnLinkUp()
		}
		if e.events.OnChannels != nil {
			e.events.OnChannels()
		}

	case crsf.TypeGPS:
		if g, err := crsf.ParseGPS(payload); err == nil {
			e.telem.SetGPS(g)
		}

	case crsf.TypeBatterySensor:
		if b, err := crsf.ParseBattery(payload); err == nil {
			e.telem.SetBattery(b)
		}

	case crsf.TypeAttitude:
		if a, err := crsf.ParseAttitude(payload); err == nil {
			e.telem.SetAttitude(a)
		}

	case crsf.TypeLinkStatistics:
		if ls, err := crsf.ParseLinkStatistics(payload); err == nil {
			e.telem.SetLinkStats(ls)
		}

	case crsf.TypeFlightMode:
		e.telem.SetFlightMode(crsf.ParseFlightMode(payload))
	}
}

// checkPacketTimeout drains a stalled buffer byte by byte, re-running the
// consume loop after each shift so a frame straddling the stall can still
// be picked up.
func (e *Engine) checkPacketTimeout() {
	if e.rxLen == 0 {
		return
	}
	e.mu.Lock()
	last := e.lastReceive
	e.mu.Unlock()
	if e.now().Sub(last) <= e.cfg.PacketTimeout {
		return
	}
	for e.rxLen > 0 {
		e.shift(1)
		e.consume()
	}
}

func (e *Engine) checkLinkDown() {
	e.mu.Lock()
	down := e.linkUp && e.now().Sub(e.lastReceive) > e.cfg.Failsafe
	if down {
		e.linkUp = false
	}
	e.mu.Unlock()

	if down && e.events.OnLinkDown != nil {
		e.events.OnLinkDown()
	}
}

// SendChannels emits one RC channels frame built from the channel store.
// While the link is down the frame is dropped (not an error) unless the
// engine is configured to ignore link state. Emission is not linearised
// with lifecycle transitions: one frame may still go out right after a
// link-down.
func (e *Engine) SendChannels() error {
	e.mu.Lock()
	up := e.linkUp
	e.mu.Unlock()

	if !up && !e.cfg.IgnoreLinkState {
		return nil
	}

	payload := crsf.PackChannels(e.store.Snapshot())
	frame, err := crsf.BuildFrame(crsf.AddrFlightController, crsf.TypeRCChannels, payload[:])
	if err != nil {
		return err
	}
	if err := e.port.Write(frame); err != nil {
		return err
	}

	e.mu.Lock()
	e.sent++
	e.mu.Unlock()
	return nil
}

// Status returns the engine-side fields of the telemetry snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastMs uint32
	if !e.lastReceive.IsZero() {
		lastMs = uint32(e.lastReceive.Sub(e.start) / time.Millisecond)
	}
	return Status{
		LinkUp:          e.linkUp,
		LastReceive:     lastMs,
		PacketsReceived: e.received,
		PacketsSent:     e.sent,
		PacketsLost:     e.lost,
	}
}

// Run drives Step until ctx is cancelled. Transport errors are logged and
// retried; a closed port fails reads immediately, so errored steps back off
// briefly instead of spinning.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := e.Step(); err != nil {
			log.Printf("link: read error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			// Open is idempotent; this also recovers a port that failed
			// to open at startup.
			if err := e.port.Open(); err != nil {
				log.Printf("link: reopen: %v", err)
			}
		}
	}
}
