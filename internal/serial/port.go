// internal/serial/port.go
package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// Port is the byte-granular transport contract the link engine drives.
// A timed-out read is (0, false, nil): no data is not a link-down signal.
type Port interface {
	Open() error
	Close() error
	ReadByte() (byte, bool, error)
	Write(buf []byte) error
	Flush() error
}

// Config describes one serial device. CRSF runs at 420000 baud, which is not
// in the standard termios table; go.bug.st sets it through termios2 BOTHER.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// Device is a Port over a local tty.
type Device struct {
	cfg Config

	mu   sync.Mutex
	port bugst.Port
}

// NewDevice creates an unopened device handle.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: device path required")
	}
	if cfg.Baud <= 0 {
		return nil, errors.New("serial: baud must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	return &Device{cfg: cfg}, nil
}

// Open opens the tty in raw 8N1 mode. Idempotent if already open.
//
// Opening is two-step: the port is acquired with its line settings first,
// and the read timeout is applied afterwards — the kernel only honours
// VMIN/VTIME semantics once the line settings are in place.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return nil
	}

	mode := &bugst.Mode{
		BaudRate: d.cfg.Baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	p, err := bugst.Open(d.cfg.Device, mode)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", d.cfg.Device, err)
	}

	if err := p.SetReadTimeout(d.cfg.ReadTimeout); err != nil {
		p.Close()
		return fmt.Errorf("serial: set read timeout: %w", err)
	}

	// Start from empty kernel queues.
	p.ResetInputBuffer()
	p.ResetOutputBuffer()

	d.port = p
	return nil
}

// Close releases the tty. Always safe; subsequent reads fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// ReadByte reads one byte, waiting at most the configured read timeout.
func (d *Device) ReadByte() (byte, bool, error) {
	d.mu.Lock()
	p := d.port
	d.mu.Unlock()

	if p == nil {
		return 0, false, errors.New("serial: port not open")
	}

	var buf [1]byte
	n, err := p.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// Write writes buf to the port. A short write is reported as a failure; the
// caller does not retry.
func (d *Device) Write(buf []byte) error {
	d.mu.Lock()
	p := d.port
	d.mu.Unlock()

	if p == nil {
		return errors.New("serial: port not open")
	}

	n, err := p.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("serial: short write: %d of %d bytes", n, len(buf))
	}
	return nil
}

// Flush discards both kernel queues.
func (d *Device) Flush() error {
	d.mu.Lock()
	p := d.port
	d.mu.Unlock()

	if p == nil {
		return errors.New("serial: port not open")
	}
	if err := p.ResetInputBuffer(); err != nil {
		return err
	}
	return p.ResetOutputBuffer()
}

// Name returns the device path.
func (d *Device) Name() string { return d.cfg.Device }
