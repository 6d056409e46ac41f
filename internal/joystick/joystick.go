// internal/joystick/joystick.go
package joystick

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Reader for the legacy Linux joystick interface (/dev/input/jsN).
// Events are fixed 8-byte records: u32 timestamp, i16 value, u8 type,
// u8 number. The device is opened non-blocking so Poll never stalls the
// transmit loop.

const (
	eventSize = 8

	eventButton = 0x01
	eventAxis   = 0x02
	eventInit   = 0x80
)

// Device is one open joystick. Axis and button counts are not probed up
// front; the caches grow as events arrive, which also covers drivers that
// do not implement the count ioctls.
type Device struct {
	mu      sync.Mutex
	fd      int
	path    string
	axes    []int16
	buttons []bool
}

// Open opens the joystick device. The caller treats failure as a warning:
// the bridge runs fine without a stick.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("joystick: open %s: %w", path, err)
	}
	return &Device{fd: fd, path: path}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// Poll drains every pending event into the caches. Returns true if at
// least one event was processed.
func (d *Device) Poll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return false
	}

	processed := false
	var buf [eventSize]byte
	for {
		n, err := unix.Read(d.fd, buf[:])
		if err != nil || n < eventSize {
			break
		}
		processed = true

		value := int16(binary.NativeEndian.Uint16(buf[4:6]))
		typ := buf[6] &^ eventInit
		num := int(buf[7])

		switch typ {
		case eventAxis:
			for len(d.axes) <= num {
				d.axes = append(d.axes, 0)
			}
			d.axes[num] = value
		case eventButton:
			for len(d.buttons) <= num {
				d.buttons = append(d.buttons, false)
			}
			d.buttons[num] = value != 0
		}
	}
	return processed
}

// Axis returns the cached value of axis i and whether the axis has been
// seen at all.
func (d *Device) Axis(i int) (int16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.axes) {
		return 0, false
	}
	return d.axes[i], true
}

func (d *Device) NumAxes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.axes)
}

func (d *Device) NumButtons() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buttons)
}

func (d *Device) Name() string { return d.path }
