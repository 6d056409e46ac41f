// internal/sched/scheduler.go
package sched

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/channels"
	"github.com/fobos-uav/crsf-bridge/internal/command"
)

// Emitter is the scheduler's handle on the link engine transmit side.
type Emitter interface {
	SendChannels() error
}

// Stick is the scheduler's view of a joystick device.
type Stick interface {
	Poll() bool
	Axis(i int) (int16, bool)
}

// Config holds scheduler knobs.
type Config struct {
	// SendPeriod is the minimum spacing between RC frames (~100 Hz).
	SendPeriod time.Duration
	// CommandFile, when set, is drained and deleted on every poll.
	CommandFile string
	// InitialMode selects joystick or manual control at startup.
	InitialMode string
}

// Scheduler drives the periodic transmit path: it applies control inputs to
// the channel store and emits one RC frame whenever the send period has
// elapsed. Jitter is bounded by the polling granularity only.
type Scheduler struct {
	emitter Emitter
	store   *channels.Store
	queue   *command.Queue
	stick   Stick // may be nil
	cfg     Config

	now      func() time.Time
	lastSend time.Time

	mu   sync.Mutex
	mode string
}

func New(emitter Emitter, store *channels.Store, queue *command.Queue, stick Stick, cfg Config) *Scheduler {
	if cfg.SendPeriod <= 0 {
		cfg.SendPeriod = 10 * time.Millisecond
	}
	mode := cfg.InitialMode
	if mode != command.ModeJoystick {
		mode = command.ModeManual
	}
	return &Scheduler{
		emitter: emitter,
		store:   store,
		queue:   queue,
		stick:   stick,
		cfg:     cfg,
		now:     time.Now,
		mode:    mode,
	}
}

// Mode returns the current control mode.
func (s *Scheduler) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between joystick and manual control.
func (s *Scheduler) SetMode(mode string) {
	if mode != command.ModeJoystick && mode != command.ModeManual {
		return
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Poll runs one scheduler pass: drain commands, sample the stick, and emit
// a frame if due.
func (s *Scheduler) Poll() {
	if s.cfg.CommandFile != "" {
		if err := s.queue.DrainFile(s.cfg.CommandFile); err != nil {
			log.Printf("sched: command file: %v", err)
		}
	}

	for _, cmd := range s.queue.Drain() {
		s.apply(cmd)
	}

	if s.stick != nil {
		s.stick.Poll()
		if s.Mode() == command.ModeJoystick {
			s.applyStick()
		}
	}

	if s.now().Sub(s.lastSend) >= s.cfg.SendPeriod {
		s.lastSend = s.now()
		s.emit()
	}
}

func (s *Scheduler) apply(cmd command.Command) {
	switch cmd.Kind {
	case command.KindSetChannel:
		s.store.Set(cmd.Channel, cmd.Value)
	case command.KindSetChannels:
		for ch, us := range cmd.Channels {
			s.store.Set(ch, us)
		}
	case command.KindSendChannels:
		s.emit()
	case command.KindSetMode:
		s.SetMode(cmd.Mode)
	}
}

// Axis assignment: axis 2 is roll, axis 3 inverted is pitch, axis 1
// inverted is throttle, axis 0 is yaw.
func (s *Scheduler) applyStick() {
	if v, ok := s.stick.Axis(2); ok {
		s.store.Set(1, axisToUs(v))
	}
	if v, ok := s.stick.Axis(3); ok {
		s.store.Set(2, axisToUs(invert(v)))
	}
	if v, ok := s.stick.Axis(1); ok {
		s.store.Set(3, axisToUs(invert(v)))
	}
	if v, ok := s.stick.Axis(0); ok {
		s.store.Set(4, axisToUs(v))
	}
}

func (s *Scheduler) emit() {
	if err := s.emitter.SendChannels(); err != nil {
		log.Printf("sched: send: %v", err)
	}
}

// axisToUs maps a raw axis value onto the servo range: linear with mid at
// 1500, the two half-ranges normalised separately because int16 is
// asymmetric around zero.
func axisToUs(v int16) int {
	var n float64
	if v >= 0 {
		n = float64(v) / 32767.0
	} else {
		n = float64(v) / 32768.0
	}
	us := int(1500.0 + n*500.0 + 0.5)
	if us < 1000 {
		us = 1000
	}
	if us > 2000 {
		us = 2000
	}
	return us
}

// invert flips an axis without overflowing at the int16 minimum.
func invert(v int16) int16 {
	if v == -32768 {
		return 32767
	}
	return -v
}

// Run polls in fine-grained increments until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}
