package platform

import (
	"errors"
	"sync"
	"time"

	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
)

// ----------------------------- QSPI (host) -----------------------------------

// RecordedFrame is one frame seen by a HostQSPI.
type RecordedFrame struct {
	halcore.Frame
	At time.Time
}

// HostQSPI implements halcore.QSPIHost for host-side tests and dry runs.
// Every frame is copied into an in-memory trace.
type HostQSPI struct {
	mu sync.Mutex

	unit       halcore.QSPIUnit
	cfg        halcore.QSPIConfig
	configured bool
	closed     bool
	frames     []RecordedFrame
	configures int

	// Fault injection.
	maxHz     uint32        // 0 => any clock accepted
	delay     time.Duration // per-frame latency
	failAfter int           // frames accepted before err is returned; <0 disables
	failErr   error
}

func newHostQSPI(unit halcore.QSPIUnit) *HostQSPI {
	return &HostQSPI{unit: unit, failAfter: -1}
}

func (h *HostQSPI) Configure(cfg halcore.QSPIConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configures++
	if h.maxHz != 0 && cfg.Hz > h.maxHz {
		return errcode.ClockRejected
	}
	h.cfg = cfg
	h.configured = true
	h.closed = false
	return nil
}

func (h *HostQSPI) CheckFrequency(hz uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hz == 0 || (h.maxHz != 0 && hz > h.maxHz) {
		return errcode.ClockRejected
	}
	return nil
}

func (h *HostQSPI) TxFrame(f halcore.Frame) error {
	h.mu.Lock()
	if !h.configured || h.closed {
		h.mu.Unlock()
		return errcode.Closed
	}
	if f.Read != nil && !f.Raw() {
		h.mu.Unlock()
		return errcode.Unsupported
	}
	if h.failAfter >= 0 && len(h.frames) >= h.failAfter {
		err := h.failErr
		h.mu.Unlock()
		return err
	}
	delay := h.delay
	rec := RecordedFrame{Frame: f, At: time.Now()}
	rec.Data = append([]byte(nil), f.Data...)
	rec.Read = nil
	h.frames = append(h.frames, rec)
	h.mu.Unlock()

	// No device behind the bus: reads come back as zeros.
	for i := range f.Read {
		f.Read[i] = 0
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

func (h *HostQSPI) Close() error {
	h.mu.Lock()
	h.closed = true
	h.configured = false
	h.mu.Unlock()
	return nil
}

// Frames returns a snapshot of the recorded trace.
func (h *HostQSPI) Frames() []RecordedFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RecordedFrame(nil), h.frames...)
}

// Config returns the last applied configuration.
func (h *HostQSPI) Config() (halcore.QSPIConfig, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.configured
}

// Configures counts Configure calls (including rejected ones).
func (h *HostQSPI) Configures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.configures
}

// Closed reports whether the unit has been released.
func (h *HostQSPI) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// LimitFrequency makes the unit reject clocks above hz.
func (h *HostQSPI) LimitFrequency(hz uint32) {
	h.mu.Lock()
	h.maxHz = hz
	h.mu.Unlock()
}

// SetDelay adds latency to every frame (used to exercise transfer timeouts).
func (h *HostQSPI) SetDelay(d time.Duration) {
	h.mu.Lock()
	h.delay = d
	h.mu.Unlock()
}

// FailAfter makes every frame after the first n fail with err.
func (h *HostQSPI) FailAfter(n int, err error) {
	if err == nil {
		err = errors.New("injected transfer fault")
	}
	h.mu.Lock()
	h.failAfter = n
	h.failErr = err
	h.mu.Unlock()
}

// ----------------------------- GPIO (host) -----------------------------------

// PinEvent is one recorded level change.
type PinEvent struct {
	Level bool
	At    time.Time
}

// FakePin implements halcore.GPIOPin and records every level it is driven to.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	events  []PinEvent
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.events = append(p.events, PinEvent{Level: initial, At: time.Now()})
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.events = append(p.events, PinEvent{Level: level, At: time.Now()})
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *FakePin) Number() int { return p.number }

// IsOutput reports whether the pin has been configured as an output.
func (p *FakePin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}

// Events returns a snapshot of the recorded level changes.
func (p *FakePin) Events() []PinEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PinEvent(nil), p.events...)
}

// ----------------------------- Factory ---------------------------------------

// Host hands out stable fakes per unit and per pin number.
type Host struct {
	mu   sync.Mutex
	qspi map[halcore.QSPIUnit]*HostQSPI
	pins map[int]*FakePin
}

// NewHost returns an empty host platform.
func NewHost() *Host {
	return &Host{
		qspi: make(map[halcore.QSPIUnit]*HostQSPI),
		pins: make(map[int]*FakePin),
	}
}

func (h *Host) ByUnit(unit halcore.QSPIUnit) (halcore.QSPIHost, bool) {
	return h.Unit(unit), true
}

func (h *Host) ByNumber(n int) (halcore.GPIOPin, bool) {
	return h.Pin(n), true
}

// Unit exposes the underlying *HostQSPI for tests.
func (h *Host) Unit(unit halcore.QSPIUnit) *HostQSPI {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.qspi[unit]
	if !ok {
		q = newHostQSPI(unit)
		h.qspi[unit] = q
	}
	return q
}

// Pin exposes the underlying *FakePin for tests.
func (h *Host) Pin(n int) *FakePin {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pins[n]
	if !ok {
		p = &FakePin{number: n}
		h.pins[n] = p
	}
	return p
}
