// Package qpanel drives a TFT panel whose controller is reached over a QSPI
// bus: one instruction byte, a 24-bit address carrying the DCS command and
// a data phase on one or four lines.
//
// Init runs the bring-up sequence (reset pulse, vendor table, colour
// format, orientation, inversion, sleep out, display on) and then selects
// the pixel clock. After that the Device accepts pixel windows and can be
// used as a tinygo drivers.Displayer:
//
//	p := qpanel.New(bus, reg, qpanel.Config{Width: 360, Height: 360, ...})
//	if err := p.Init(); err != nil { ... }
//	err = p.DrawWindow(0, 0, 360, 40, band)
package qpanel

import (
	"image/color"
	"strconv"
	"sync"
	"time"

	"qspitft-go/drivers/internal/lifecycle"
	"qspitft-go/drivers/qspi"
	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
	"qspitft-go/types"
	"qspitft-go/x/mathx"

	"tinygo.org/x/drivers"
)

var _ drivers.Displayer = (*Device)(nil)

// Device is one panel on a QSPI bus. The bus is borrowed, not owned.
type Device struct {
	bus *qspi.Bus
	reg halcore.ResourceRegistry
	cfg Config
	id  string
	lc  lifecycle.Machine

	mu       sync.Mutex // serialises CS-framed transactions
	reset    halcore.GPIOPin
	cs       halcore.GPIOPin
	attached bool

	fb []byte // lazily allocated for the Displayer view
}

// New creates a panel controller. It does not touch the hardware.
func New(bus *qspi.Bus, reg halcore.ResourceRegistry, cfg Config) *Device {
	return &Device{
		bus: bus,
		reg: reg,
		cfg: cfg,
		id:  "qpanel-cs" + strconv.Itoa(cfg.CS),
	}
}

// ID is the owner name used for registry claims and bus attachment.
func (d *Device) ID() string { return d.id }

// Config returns the configuration the panel was built with.
func (d *Device) Config() Config { return d.cfg }

// State reports the lifecycle state.
func (d *Device) State() types.State { return d.lc.State() }

// Err returns the error that failed Init, if any.
func (d *Device) Err() error { return d.lc.Err() }

// Size returns the configured geometry.
func (d *Device) Size() (x, y int16) { return d.cfg.Width, d.cfg.Height }

// Init brings the panel up. The bus must already be Ready. Init may be
// called once; it blocks through the reset and sleep-out delays.
func (d *Device) Init() error {
	const op = "qpanel.init"
	if err := d.lc.Begin(op); err != nil {
		return err
	}
	if d.reg == nil {
		return d.lc.Fail(errcode.Config(op, "registry", errcode.InvalidParams, "nil resource registry"))
	}
	if err := d.cfg.Validate(d.bus); err != nil {
		return d.lc.Fail(err)
	}

	if err := d.claimPins(op); err != nil {
		d.releasePins()
		return d.lc.Fail(err)
	}
	if err := d.hardReset(op); err != nil {
		d.releasePins()
		return d.lc.Fail(err)
	}
	if err := d.configure(); err != nil {
		d.releasePins()
		return d.lc.Fail(err)
	}
	if err := d.bus.SetPixelClock(d.cfg.PixelClock); err != nil {
		d.releasePins()
		return d.lc.Fail(err)
	}
	if err := d.bus.Attach(d.id); err != nil {
		d.releasePins()
		return d.lc.Fail(err)
	}

	d.mu.Lock()
	d.attached = true
	d.mu.Unlock()
	d.lc.Ready()
	return nil
}

func (d *Device) claimPins(op string) error {
	rst, err := d.reg.ClaimGPIO(d.id, d.cfg.Reset)
	if err != nil {
		return errcode.Hardware(op, errcode.PinInUse, err)
	}
	d.mu.Lock()
	d.reset = rst
	d.mu.Unlock()

	cs, err := d.reg.ClaimGPIO(d.id, d.cfg.CS)
	if err != nil {
		return errcode.Hardware(op, errcode.PinInUse, err)
	}
	d.mu.Lock()
	d.cs = cs
	d.mu.Unlock()

	if err := cs.ConfigureOutput(true); err != nil {
		return errcode.Hardware(op, errcode.InvalidPin, err)
	}
	return nil
}

// hardReset drives reset inactive, asserts it for ResetHold and waits
// ResetSettle after release.
func (d *Device) hardReset(op string) error {
	m := d.cfg.Model
	if err := d.reset.ConfigureOutput(true); err != nil {
		return errcode.Hardware(op, errcode.InvalidPin, err)
	}
	d.reset.Set(false)
	time.Sleep(m.ResetHold)
	d.reset.Set(true)
	time.Sleep(m.ResetSettle)
	return nil
}

func (d *Device) configure() error {
	m := d.cfg.Model
	for _, c := range m.Init {
		if err := d.command(c.Op, c.Data...); err != nil {
			return err
		}
		if c.Delay > 0 {
			time.Sleep(c.Delay)
		}
	}
	if err := d.command(cmdCOLMOD, m.PixelFormat.colmod()); err != nil {
		return err
	}
	if err := d.command(cmdMADCTL, madctl(d.cfg)); err != nil {
		return err
	}
	inv := byte(cmdINVOFF)
	if d.cfg.Invert {
		inv = cmdINVON
	}
	if err := d.command(inv); err != nil {
		return err
	}
	if err := d.command(cmdSLPOUT); err != nil {
		return err
	}
	time.Sleep(m.SleepOutDelay)
	return d.command(cmdDISPON)
}

// command sends one DCS command framed by CS.
func (d *Device) command(op byte, data ...byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cs.Set(false)
	err := d.bus.Send(halcore.Frame{
		Instruction:  d.cfg.Model.CmdInstruction,
		Address:      uint32(op) << 8,
		AddressBytes: 3,
		Data:         data,
	})
	d.cs.Set(true)
	return err
}

// ---- Drawing ----

// DrawWindow writes a w*h block of pixels at (x, y). pix holds the pixels
// row by row in the model's pixel format, big-endian.
func (d *Device) DrawWindow(x, y, w, h int16, pix []byte) error {
	const op = "qpanel.draw"
	if err := d.lc.Require(op); err != nil {
		return err
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || int(x)+int(w) > int(d.cfg.Width) || int(y)+int(h) > int(d.cfg.Height) {
		return errcode.Config(op, "window", errcode.OutOfRange,
			"window outside "+strconv.Itoa(int(d.cfg.Width))+"x"+strconv.Itoa(int(d.cfg.Height)))
	}
	bpp := d.cfg.Model.PixelFormat.BytesPerPixel()
	if len(pix) != int(w)*int(h)*bpp {
		return errcode.Config(op, "pixels", errcode.InvalidParams,
			strconv.Itoa(len(pix))+" bytes for "+strconv.Itoa(int(w))+"x"+strconv.Itoa(int(h)))
	}

	x0 := uint16(x + d.cfg.OffsetX)
	y0 := uint16(y + d.cfg.OffsetY)
	x1 := x0 + uint16(w) - 1
	y1 := y0 + uint16(h) - 1
	if err := d.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}

	// Chunks end on pixel boundaries.
	chunk := d.bus.MaxTransfer() / bpp * bpp
	return mathx.Chunks(len(pix), chunk, func(i, off, n int) error {
		ramwr := byte(cmdRAMWRC)
		if i == 0 {
			ramwr = cmdRAMWR
		}
		return d.pixels(ramwr, pix[off:off+n])
	})
}

func (d *Device) pixels(op byte, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cs.Set(false)
	err := d.bus.SendPixels(halcore.Frame{
		Instruction:  d.cfg.Model.PixelInstruction,
		Address:      uint32(op) << 8,
		AddressBytes: 3,
		Data:         data,
		DataLines:    d.cfg.Model.PixelLines,
	})
	d.cs.Set(true)
	return err
}

// Fill paints the whole panel with c, one band of rows at a time.
func (d *Device) Fill(c color.RGBA) error {
	if err := d.lc.Require("qpanel.fill"); err != nil {
		return err
	}
	f := d.cfg.Model.PixelFormat
	bpp := f.BytesPerPixel()
	row := int(d.cfg.Width) * bpp
	rows := mathx.Clamp(d.bus.MaxTransfer()/row, 1, int(d.cfg.Height))

	band := make([]byte, rows*row)
	for i := 0; i < len(band); i += bpp {
		f.encode(band[i:], c)
	}
	for y := 0; y < int(d.cfg.Height); y += rows {
		n := mathx.Min(rows, int(d.cfg.Height)-y)
		if err := d.DrawWindow(0, int16(y), d.cfg.Width, int16(n), band[:n*row]); err != nil {
			return err
		}
	}
	return nil
}

// SetPixel stores c in the in-memory framebuffer; Display sends it.
// Out-of-range coordinates are ignored.
func (d *Device) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= d.cfg.Width || y >= d.cfg.Height {
		return
	}
	f := d.cfg.Model.PixelFormat
	bpp := f.BytesPerPixel()
	if bpp == 0 {
		return
	}
	if d.fb == nil {
		d.fb = make([]byte, int(d.cfg.Width)*int(d.cfg.Height)*bpp)
	}
	i := (int(y)*int(d.cfg.Width) + int(x)) * bpp
	f.encode(d.fb[i:], c)
}

// Display flushes the framebuffer to the panel.
func (d *Device) Display() error {
	if d.fb == nil {
		d.fb = make([]byte, int(d.cfg.Width)*int(d.cfg.Height)*d.cfg.Model.PixelFormat.BytesPerPixel())
	}
	return d.DrawWindow(0, 0, d.cfg.Width, d.cfg.Height, d.fb)
}

// encode writes c into dst in wire order.
func (f PixelFormat) encode(dst []byte, c color.RGBA) {
	switch f {
	case RGB565:
		v := uint16(c.R&0xF8)<<8 | uint16(c.G&0xFC)<<3 | uint16(c.B)>>3
		dst[0], dst[1] = byte(v>>8), byte(v)
	case RGB666:
		dst[0], dst[1], dst[2] = c.R&0xFC, c.G&0xFC, c.B&0xFC
	case RGB888:
		dst[0], dst[1], dst[2] = c.R, c.G, c.B
	}
}

// ---- Teardown ----

// Close turns the display off and puts it to sleep if it was running,
// then releases the control pins and detaches from the bus. Close is
// idempotent.
func (d *Device) Close() error {
	prev := d.lc.Close()
	if prev == types.StateClosed {
		return nil
	}
	var err error
	if prev == types.StateReady {
		err = d.command(cmdDISPOFF)
		if e := d.command(cmdSLPIN); err == nil {
			err = e
		}
	}
	d.releasePins()

	d.mu.Lock()
	attached := d.attached
	d.attached = false
	d.mu.Unlock()
	if attached {
		d.bus.Detach(d.id)
	}
	return err
}

func (d *Device) releasePins() {
	d.mu.Lock()
	rst, cs := d.reset, d.cs
	d.reset, d.cs = nil, nil
	d.mu.Unlock()
	if cs != nil {
		d.reg.ReleasePin(d.id, cs.Number())
	}
	if rst != nil {
		d.reg.ReleasePin(d.id, rst.Number())
	}
}
