// internal/link/engine_test.go
package link

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/channels"
	"github.com/fobos-uav/crsf-bridge/internal/crsf"
	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// ---- fakes ----

type fakePort struct {
	data    []byte
	writes  [][]byte
	readErr error
}

func (f *fakePort) Open() error  { return nil }
func (f *fakePort) Close() error { return nil }

func (f *fakePort) ReadByte() (byte, bool, error) {
	if f.readErr != nil {
		return 0, false, f.readErr
	}
	if len(f.data) == 0 {
		return 0, false, nil
	}
	b := f.data[0]
	f.data = f.data[1:]
	return b, true, nil
}

func (f *fakePort) Write(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakePort) Flush() error {
	f.data = nil
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type eventLog struct {
	ups, downs, channels int
}

func newTestEngine(cfg Config) (*Engine, *fakePort, *fakeClock, *channels.Store, *telemetry.Store, *eventLog) {
	fp := &fakePort{}
	clk := &fakeClock{t: time.Unix(1000, 0)}
	store := channels.NewStore()
	telem := telemetry.NewStore()
	ev := &eventLog{}

	e := New(fp, store, telem, Events{
		OnLinkUp:   func() { ev.ups++ },
		OnLinkDown: func() { ev.downs++ },
		OnChannels: func() { ev.channels++ },
	}, cfg)
	e.now = clk.now
	e.start = clk.t

	return e, fp, clk, store, telem, ev
}

func drain(t *testing.T, e *Engine, fp *fakePort) {
	t.Helper()
	for i := 0; i < 1000 && len(fp.data) > 0; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("Step err=%v", err)
		}
	}
	if len(fp.data) > 0 {
		t.Fatalf("port not drained: %d bytes left", len(fp.data))
	}
}

func mustFrame(t *testing.T, typ byte, payload []byte) []byte {
	t.Helper()
	frame, err := crsf.BuildFrame(crsf.AddrFlightController, typ, payload)
	if err != nil {
		t.Fatalf("BuildFrame err=%v", err)
	}
	return frame
}

// ---- scenarios ----

func TestEngine_ChannelsFrameBringsLinkUp(t *testing.T) {
	// C8 18 16 <22 zero bytes> CC: all sticks at minimum.
	e, fp, _, store, _, ev := newTestEngine(Config{})

	fp.data = mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	drain(t, e, fp)

	st := e.Status()
	if !st.LinkUp {
		t.Fatal("link not up after a valid channels frame")
	}
	if ev.ups != 1 {
		t.Fatalf("OnLinkUp fired %d times, want 1", ev.ups)
	}
	if ev.channels != 1 {
		t.Fatalf("OnChannels fired %d times, want 1", ev.channels)
	}
	for ch := 1; ch <= 16; ch++ {
		if got := store.Get(ch); got != 1000 {
			t.Fatalf("channel %d = %d, want 1000", ch, got)
		}
	}
	if st.PacketsReceived != 1 {
		t.Fatalf("received = %d, want 1", st.PacketsReceived)
	}
}

func TestEngine_SendChannelsRoundTrip(t *testing.T) {
	e, fp, _, store, _, _ := newTestEngine(Config{})

	fp.data = mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	drain(t, e, fp)

	for ch := 1; ch <= 16; ch++ {
		store.Set(ch, 1500)
	}
	if err := e.SendChannels(); err != nil {
		t.Fatalf("SendChannels err=%v", err)
	}

	if len(fp.writes) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(fp.writes))
	}
	out := fp.writes[0]
	if len(out) != 26 {
		t.Fatalf("frame length = %d, want 26", len(out))
	}
	if out[0] != 0xC8 || out[1] != 0x18 || out[2] != 0x16 {
		t.Fatalf("frame header = % X, want C8 18 16", out[:3])
	}

	var payload [22]byte
	copy(payload[:], out[3:25])
	us := crsf.UnpackChannels(payload)
	for i, v := range us {
		if v != 1500 {
			t.Fatalf("decoded channel %d = %d, want 1500", i+1, v)
		}
	}

	if st := e.Status(); st.PacketsSent != 1 {
		t.Fatalf("sent = %d, want 1", st.PacketsSent)
	}
}

func TestEngine_SendSuppressedWhileLinkDown(t *testing.T) {
	e, fp, _, _, _, _ := newTestEngine(Config{})

	if err := e.SendChannels(); err != nil {
		t.Fatalf("SendChannels err=%v", err)
	}
	if len(fp.writes) != 0 {
		t.Fatal("frame emitted while link down")
	}

	// --notel: emit regardless of link state.
	e2, fp2, _, _, _, _ := newTestEngine(Config{IgnoreLinkState: true})
	if err := e2.SendChannels(); err != nil {
		t.Fatalf("SendChannels err=%v", err)
	}
	if len(fp2.writes) != 1 {
		t.Fatal("frame not emitted with IgnoreLinkState")
	}
}

func TestEngine_BadCRCDiscardsWholeFrame(t *testing.T) {
	e, fp, _, store, _, ev := newTestEngine(Config{})

	frame := mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	frame[len(frame)-1] ^= 0xFF
	fp.data = frame
	drain(t, e, fp)

	st := e.Status()
	if st.LinkUp || ev.ups != 0 || ev.channels != 0 {
		t.Fatal("corrupt frame changed link state or fired callbacks")
	}
	if e.rxLen != 0 {
		t.Fatalf("buffer not drained: %d bytes", e.rxLen)
	}
	if st.PacketsLost != 1 {
		t.Fatalf("lost = %d, want 1", st.PacketsLost)
	}
	for ch := 1; ch <= 16; ch++ {
		if got := store.Get(ch); got != 1500 {
			t.Fatalf("channel %d mutated to %d", ch, got)
		}
	}
}

func TestEngine_ResyncAfterGarbage(t *testing.T) {
	e, fp, _, _, _, ev := newTestEngine(Config{})

	garbage := []byte{0x00, 0x01, 0xFF, 0x02, 0x7E, 0xC8, 0x01}
	fp.data = append(garbage, mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))...)
	drain(t, e, fp)

	if !e.Status().LinkUp || ev.ups != 1 {
		t.Fatal("frame after garbage prefix not accepted")
	}
}

func TestEngine_TelemetryDispatch(t *testing.T) {
	e, fp, _, _, telem, _ := newTestEngine(Config{})

	att := []byte{0x00, 0x00, 0x06, 0xD6, 0x0D, 0xAC} // pitch 0, roll 1750, yaw 3500
	gps := make([]byte, 15)
	gps[14] = 9
	bat := []byte{0x06, 0x90, 0x00, 0x7D, 0x00, 0x14, 0x50, 0x57}

	fp.data = append(fp.data, mustFrame(t, crsf.TypeAttitude, att)...)
	fp.data = append(fp.data, mustFrame(t, crsf.TypeGPS, gps)...)
	fp.data = append(fp.data, mustFrame(t, crsf.TypeBatterySensor, bat)...)
	fp.data = append(fp.data, mustFrame(t, crsf.TypeFlightMode, []byte("ACRO\x00"))...)
	drain(t, e, fp)

	snap := telem.Get()
	if snap.Attitude.RollRaw != 1750 || snap.Attitude.PitchRaw != 0 || snap.Attitude.YawRaw != 3500 {
		t.Errorf("attitude = %+v", snap.Attitude)
	}
	if y := snap.Attitude.Yaw(); y < 0 || y >= 360 {
		t.Errorf("yaw = %f, want [0, 360)", y)
	}
	if snap.GPS.Satellites != 9 {
		t.Errorf("gps = %+v", snap.GPS)
	}
	if snap.Battery.Voltage != 1680 || snap.Battery.Remaining != 87 {
		t.Errorf("battery = %+v", snap.Battery)
	}
	if snap.FlightMode != "ACRO" {
		t.Errorf("flight mode = %q", snap.FlightMode)
	}
	// Telemetry alone never raises the link.
	if e.Status().LinkUp {
		t.Error("telemetry frames raised the link")
	}
}

func TestEngine_ForeignAddressIgnored(t *testing.T) {
	e, fp, _, _, _, ev := newTestEngine(Config{})

	frame, err := crsf.BuildFrame(0xEA, crsf.TypeRCChannels, make([]byte, 22))
	if err != nil {
		t.Fatalf("BuildFrame err=%v", err)
	}
	fp.data = frame
	drain(t, e, fp)

	if e.Status().LinkUp || ev.ups != 0 {
		t.Fatal("frame with foreign address was dispatched")
	}
	if e.Status().PacketsReceived != 0 {
		t.Fatal("foreign frame counted as received")
	}
}

func TestEngine_UnknownTypeDropped(t *testing.T) {
	e, fp, _, _, _, _ := newTestEngine(Config{})

	fp.data = mustFrame(t, 0x7F, []byte{1, 2, 3})
	drain(t, e, fp)

	if e.rxLen != 0 {
		t.Fatalf("buffer not empty after unknown type: %d bytes", e.rxLen)
	}
	if st := e.Status(); st.PacketsReceived != 1 || st.PacketsLost != 0 {
		t.Fatalf("counters = %+v", e.Status())
	}
}

func TestEngine_RandomBytesBoundedBuffer(t *testing.T) {
	e, fp, _, _, _, _ := newTestEngine(Config{})

	rng := rand.New(rand.NewSource(42))
	noise := make([]byte, 4096)
	rng.Read(noise)
	fp.data = noise

	for i := 0; i < 4096/readBurst+2 && len(fp.data) > 0; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("Step err=%v", err)
		}
		if e.rxLen > crsf.MaxFrameSize {
			t.Fatalf("rx buffer grew to %d bytes", e.rxLen)
		}
	}
	if len(fp.data) > 0 {
		t.Fatalf("engine did not keep up with noise: %d bytes left", len(fp.data))
	}
}

func TestEngine_RisingEdgeOnlyOnce(t *testing.T) {
	e, fp, _, _, _, ev := newTestEngine(Config{})

	frame := mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	fp.data = append(append([]byte{}, frame...), frame...)
	drain(t, e, fp)

	if ev.ups != 1 {
		t.Fatalf("OnLinkUp fired %d times for two frames, want 1", ev.ups)
	}
	if ev.channels != 2 {
		t.Fatalf("OnChannels fired %d times, want 2", ev.channels)
	}
}

func TestEngine_FailsafeTimer(t *testing.T) {
	e, fp, clk, _, _, ev := newTestEngine(Config{})

	fp.data = mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	drain(t, e, fp)
	if !e.Status().LinkUp {
		t.Fatal("precondition: link not up")
	}

	// One millisecond short of the failsafe: still up.
	clk.advance(120 * time.Second)
	if err := e.Step(); err != nil {
		t.Fatalf("Step err=%v", err)
	}
	if !e.Status().LinkUp || ev.downs != 0 {
		t.Fatal("failsafe fired early")
	}

	// Crossing 120000 ms of silence takes the link down exactly once.
	clk.advance(time.Millisecond)
	if err := e.Step(); err != nil {
		t.Fatalf("Step err=%v", err)
	}
	if e.Status().LinkUp {
		t.Fatal("link still up after failsafe")
	}
	if ev.downs != 1 {
		t.Fatalf("OnLinkDown fired %d times, want 1", ev.downs)
	}

	if err := e.Step(); err != nil {
		t.Fatalf("Step err=%v", err)
	}
	if ev.downs != 1 {
		t.Fatalf("OnLinkDown re-fired: %d", ev.downs)
	}

	// A fresh channels frame is a new rising edge.
	fp.data = mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	drain(t, e, fp)
	if ev.ups != 2 {
		t.Fatalf("OnLinkUp fired %d times after recovery, want 2", ev.ups)
	}
}

func TestEngine_PacketTimeoutFlushesStalledBuffer(t *testing.T) {
	e, fp, clk, _, _, _ := newTestEngine(Config{})

	// A truncated frame: valid header, payload never arrives.
	fp.data = []byte{0xC8, 0x18, 0x16, 0x01, 0x02}
	drain(t, e, fp)
	if e.rxLen != 5 {
		t.Fatalf("precondition: buffer holds %d bytes, want 5", e.rxLen)
	}

	clk.advance(99 * time.Millisecond)
	if err := e.Step(); err != nil {
		t.Fatalf("Step err=%v", err)
	}
	if e.rxLen != 5 {
		t.Fatal("buffer flushed before the packet timeout")
	}

	clk.advance(2 * time.Millisecond)
	if err := e.Step(); err != nil {
		t.Fatalf("Step err=%v", err)
	}
	if e.rxLen != 0 {
		t.Fatalf("buffer not flushed after timeout: %d bytes", e.rxLen)
	}
}

func TestEngine_ReadErrorIsReportedNotFatal(t *testing.T) {
	e, fp, _, _, _, _ := newTestEngine(Config{})

	fp.readErr = errReadBroken
	if err := e.Step(); err == nil {
		t.Fatal("Step swallowed the transport error")
	}

	// The engine retries on the next step once the port recovers.
	fp.readErr = nil
	fp.data = mustFrame(t, crsf.TypeRCChannels, make([]byte, 22))
	drain(t, e, fp)
	if !e.Status().LinkUp {
		t.Fatal("engine did not recover after a transport error")
	}
}

var errReadBroken = &readError{"broken pipe"}

type readError struct{ msg string }

func (e *readError) Error() string { return e.msg }
