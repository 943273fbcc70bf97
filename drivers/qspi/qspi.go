// Package qspi provides the bus controller for a quad-SPI peripheral unit.
//
// A Bus claims its unit and pins from a halcore.ResourceRegistry when Init
// is called and holds them until Close. Frames are issued through the
// claimed unit; pixel frames run at a separately selected pixel clock:
//
//	b := qspi.New(reg, qspi.Config{Unit: 2, Frequency: 80_000_000, ...})
//	if err := b.Init(); err != nil { ... }
//	defer b.Close()
package qspi

import (
	"strconv"
	"sync"

	"qspitft-go/drivers/internal/lifecycle"
	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
	"qspitft-go/types"

	"tinygo.org/x/drivers"
)

// Ensure single-line clients can share the bus.
var _ drivers.SPI = (*Bus)(nil)

// Bus is the controller for one QSPI unit.
type Bus struct {
	reg halcore.ResourceRegistry
	cfg Config
	id  string
	lc  lifecycle.Machine

	mu           sync.Mutex
	hw           halcore.Bus
	pins         []int // claimed function pins
	pixelHz      uint32
	clients      map[string]struct{}
	pendingClose bool
}

// New creates a bus controller. It does not touch the hardware.
func New(reg halcore.ResourceRegistry, cfg Config) *Bus {
	return &Bus{
		reg:     reg,
		cfg:     cfg,
		id:      "qspi" + strconv.Itoa(int(cfg.Unit)),
		clients: make(map[string]struct{}),
	}
}

// ID is the owner name used for registry claims.
func (b *Bus) ID() string { return b.id }

// Config returns the configuration the bus was built with.
func (b *Bus) Config() Config { return b.cfg }

// State reports the lifecycle state.
func (b *Bus) State() types.State { return b.lc.State() }

// Err returns the error that failed Init, if any.
func (b *Bus) Err() error { return b.lc.Err() }

// MaxTransfer is the largest data phase a single frame may carry.
func (b *Bus) MaxTransfer() int { return b.cfg.MaxTransfer }

// Frequency is the command-phase clock.
func (b *Bus) Frequency() uint32 { return b.cfg.Frequency }

// PixelClock is the clock used by SendPixels; it falls back to Frequency
// until SetPixelClock is called.
func (b *Bus) PixelClock() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pixelHz == 0 {
		return b.cfg.Frequency
	}
	return b.pixelHz
}

// Init validates the configuration, claims the unit and its pins, and puts
// the unit in quad mode at the configured clock. Init may be called once.
func (b *Bus) Init() error {
	const op = "qspi.init"
	if err := b.lc.Begin(op); err != nil {
		return err
	}
	if b.reg == nil {
		return b.lc.Fail(errcode.Config(op, "registry", errcode.InvalidParams, "nil resource registry"))
	}
	if err := b.cfg.Validate(); err != nil {
		return b.lc.Fail(err)
	}

	hw, err := b.reg.ClaimQSPI(b.id, b.cfg.Unit)
	if err != nil {
		return b.lc.Fail(errcode.Hardware(op, errcode.BusInUse, err))
	}

	b.mu.Lock()
	b.hw = hw
	b.mu.Unlock()

	for _, p := range b.cfg.Pins() {
		if err := b.reg.ClaimFunctionPin(b.id, p); err != nil {
			b.release()
			return b.lc.Fail(errcode.Hardware(op, errcode.PinInUse, err))
		}
		b.mu.Lock()
		b.pins = append(b.pins, p)
		b.mu.Unlock()
	}

	if err := hw.Configure(halcore.QSPIConfig{
		SCK:         b.cfg.SCK,
		Data:        b.cfg.Data,
		Hz:          b.cfg.Frequency,
		MaxTransfer: b.cfg.MaxTransfer,
	}); err != nil {
		b.release()
		return b.lc.Fail(errcode.Hardware(op, errcode.ClockRejected, err))
	}

	b.lc.Ready()
	return nil
}

// SetPixelClock selects the clock for subsequent pixel frames.
func (b *Bus) SetPixelClock(hz uint32) error {
	const op = "qspi.pixel_clock"
	if err := b.lc.Require(op); err != nil {
		return err
	}
	if hz == 0 {
		return errcode.Config(op, "pixel_clock", errcode.InvalidParams, "must be positive")
	}
	hw, err := b.unit(op)
	if err != nil {
		return err
	}
	if err := hw.CheckFrequency(hz); err != nil {
		return errcode.Hardware(op, errcode.ClockRejected, err)
	}
	b.mu.Lock()
	b.pixelHz = hz
	b.mu.Unlock()
	return nil
}

// Send issues one frame at the command clock.
func (b *Bus) Send(f halcore.Frame) error {
	if f.Hz == 0 {
		f.Hz = b.cfg.Frequency
	}
	return b.send("qspi.send", f)
}

// SendPixels issues one frame at the pixel clock.
func (b *Bus) SendPixels(f halcore.Frame) error {
	f.Hz = b.PixelClock()
	return b.send("qspi.send_pixels", f)
}

func (b *Bus) send(op string, f halcore.Frame) error {
	if err := b.lc.Require(op); err != nil {
		return err
	}
	if len(f.Data) > b.cfg.MaxTransfer {
		return errcode.Config(op, "data", errcode.OutOfRange,
			strconv.Itoa(len(f.Data))+" bytes exceeds max transfer "+strconv.Itoa(b.cfg.MaxTransfer))
	}
	if f.AddressBytes > 4 {
		return errcode.Config(op, "address_bytes", errcode.OutOfRange, "at most 4")
	}
	switch f.Lines() {
	case 1, 2, 4:
	default:
		return errcode.Config(op, "data_lines", errcode.InvalidParams, "must be 1, 2 or 4")
	}
	hw, err := b.unit(op)
	if err != nil {
		return err
	}
	if err := hw.TxFrame(f); err != nil {
		return errcode.Hardware(op, errcode.TransferFailed, err)
	}
	return nil
}

// Tx implements drivers.SPI as a raw single-line transfer.
func (b *Bus) Tx(w, r []byte) error {
	return b.Send(halcore.Frame{Data: w, Read: r})
}

// Transfer implements drivers.SPI.
func (b *Bus) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.Tx([]byte{w}, r[:])
	return r[0], err
}

// ---- Clients ----

// Attach records a bus client (e.g. a panel). While clients are attached
// Close only marks the bus for release.
func (b *Bus) Attach(devID string) error {
	if err := b.lc.Require("qspi.attach"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[devID] = struct{}{}
	return nil
}

// Detach removes a client. The last client out completes a pending Close.
func (b *Bus) Detach(devID string) {
	b.mu.Lock()
	delete(b.clients, devID)
	finish := b.pendingClose && len(b.clients) == 0
	b.mu.Unlock()
	if finish {
		b.lc.Close()
		b.release()
	}
}

// Clients reports how many clients are attached.
func (b *Bus) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close releases the unit and its pins. With clients still attached the
// release is deferred until the last one detaches. Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	if len(b.clients) > 0 {
		b.pendingClose = true
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	b.lc.Close()
	b.release()
	return nil
}

// Pending reports whether a Close is waiting for clients to detach.
func (b *Bus) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingClose && len(b.clients) > 0
}

// unit returns the claimed unit, or a Closed error once it has been released.
func (b *Bus) unit(op string) (halcore.Bus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hw == nil {
		return nil, errcode.Hardware(op, errcode.Closed, nil)
	}
	return b.hw, nil
}

func (b *Bus) release() {
	b.mu.Lock()
	hw, pins := b.hw, b.pins
	b.hw, b.pins = nil, nil
	b.mu.Unlock()

	for _, p := range pins {
		b.reg.ReleasePin(b.id, p)
	}
	if hw != nil {
		_ = hw.Close()
	}
}
