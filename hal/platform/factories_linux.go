//go:build linux

package platform

import (
	"fmt"
	"sync"

	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Periph drives real hardware through periph.io on Linux boards.
//
// spidev only shifts data on one line, so frames whose data phase asks for
// more than one line are refused with errcode.Unsupported. A spidev port is
// connected once at the unit clock and cannot be re-clocked per transfer, so
// any other rate is refused with errcode.ClockRejected. Panels that accept
// single-line writes at the bus clock (PixelLines: 1, pixel_clock equal to
// baud) work end to end.
type Periph struct {
	mu   sync.Mutex
	pins map[int]*periphPin
	open func(name string) (spi.PortCloser, error)
}

// NewPeriph initialises the periph.io host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("platform: periph host init failed: %w", err)
	}
	return &Periph{pins: make(map[int]*periphPin), open: spireg.Open}, nil
}

// ByUnit maps unit n to spidev bus n, chip-select 0. Chip-select itself is
// driven by the panel through a GPIO, so the port is opened with NoCS.
func (p *Periph) ByUnit(unit halcore.QSPIUnit) (halcore.QSPIHost, bool) {
	return &periphQSPI{name: fmt.Sprintf("SPI%d.0", int(unit)), open: p.open}, true
}

func (p *Periph) ByNumber(n int) (halcore.GPIOPin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pp, ok := p.pins[n]; ok {
		return pp, true
	}
	io := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if io == nil {
		return nil, false
	}
	pp := &periphPin{io: io, n: n}
	p.pins[n] = pp
	return pp, true
}

// ----------------------------- SPI ------------------------------------------

type periphQSPI struct {
	mu   sync.Mutex
	name string
	open func(name string) (spi.PortCloser, error)
	port spi.PortCloser
	conn spi.Conn
	hz   uint32
	buf  []byte
}

func (q *periphQSPI) Configure(cfg halcore.QSPIConfig) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.port != nil {
		return errcode.BusInUse
	}
	port, err := q.open(q.name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errcode.UnknownBus, q.name, err)
	}
	conn, err := port.Connect(physic.Frequency(cfg.Hz)*physic.Hertz, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: %v", errcode.ClockRejected, err)
	}
	q.port, q.conn, q.hz = port, conn, cfg.Hz
	q.buf = make([]byte, 0, 4+cfg.MaxTransfer+1)
	return nil
}

// CheckFrequency accepts only the clock the port was connected at.
func (q *periphQSPI) CheckFrequency(hz uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return errcode.Closed
	}
	if hz != q.hz {
		return errcode.ClockRejected
	}
	return nil
}

func (q *periphQSPI) TxFrame(f halcore.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return errcode.Closed
	}
	if f.Lines() != 1 {
		return errcode.Unsupported
	}
	if f.Hz != 0 && f.Hz != q.hz {
		return errcode.ClockRejected
	}
	if f.Raw() {
		return q.conn.Tx(f.Data, f.Read)
	}
	if f.Read != nil {
		return errcode.Unsupported
	}
	w := append(q.buf[:0], f.Instruction)
	for i := int(f.AddressBytes) - 1; i >= 0; i-- {
		w = append(w, byte(f.Address>>(8*uint(i))))
	}
	w = append(w, f.Data...)
	q.buf = w[:0]
	return q.conn.Tx(w, nil)
}

func (q *periphQSPI) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.port == nil {
		return nil
	}
	err := q.port.Close()
	q.port, q.conn = nil, nil
	return err
}

// ----------------------------- GPIO -----------------------------------------

type periphPin struct {
	io gpio.PinIO
	n  int
}

func (p *periphPin) ConfigureOutput(initial bool) error {
	return p.io.Out(gpio.Level(initial))
}

func (p *periphPin) Set(level bool) { _ = p.io.Out(gpio.Level(level)) }
func (p *periphPin) Get() bool      { return p.io.Read() == gpio.High }
func (p *periphPin) Number() int    { return p.n }
