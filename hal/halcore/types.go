// Package halcore holds the hardware contracts shared by drivers and
// platform providers.
package halcore

import "tinygo.org/x/drivers"

// ---- QSPI ----

// QSPIUnit identifies one physical (Q)SPI peripheral instance.
type QSPIUnit int

// QSPIConfig is what a provider needs to bring a unit into quad mode.
type QSPIConfig struct {
	SCK         int
	Data        [4]int // data0..data3
	Hz          uint32 // command-phase clock
	MaxTransfer int    // bytes per frame data phase
}

// Frame is one chip-select-framed transaction.
//
// Instruction and address phases always use a single line; the data phase
// uses DataLines lines. A zero Instruction with AddressBytes == 0 is a raw
// single-line transfer (Data out, Read in).
type Frame struct {
	Instruction  byte
	Address      uint32
	AddressBytes uint8 // 0..4
	Data         []byte
	DataLines    uint8  // 1, 2 or 4; 0 means 1
	Hz           uint32 // 0 => unit's configured clock
	Read         []byte // optional RX buffer (single-line only)
}

// Lines reports the effective data-phase width.
func (f Frame) Lines() uint8 {
	if f.DataLines == 0 {
		return 1
	}
	return f.DataLines
}

// Raw reports whether f is a plain SPI transfer with no QSPI phases.
func (f Frame) Raw() bool { return f.Instruction == 0 && f.AddressBytes == 0 }

// QSPIHost is a configured peripheral unit.
//
// TxFrame blocks until the frame has been clocked out or the provider gives up;
// timeouts are reported as errcode.Timeout. A frame that was accepted before
// the deadline is still allowed to finish before TxFrame returns, so once it
// returns the caller may release chip-select.
type QSPIHost interface {
	Configure(cfg QSPIConfig) error
	// CheckFrequency reports whether the unit can clock at hz.
	CheckFrequency(hz uint32) error
	TxFrame(f Frame) error
	Close() error
}

// QSPIFactory supplies unconfigured units by number.
type QSPIFactory interface {
	ByUnit(unit QSPIUnit) (QSPIHost, bool)
}

// Bus is a claimed unit: a QSPIHost that also serves single-line clients
// through the TinyGo drivers.SPI contract.
type Bus interface {
	QSPIHost
	drivers.SPI
}

// ---- GPIO abstractions ----

type GPIOPin interface {
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Number() int
}

// PinFactory supplies GPIO pins by the configured number scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

// ---- Registry ----

// ResourceRegistry hands out exclusive ownership of units and pins.
// devID names the owner; releases by a non-owner are ignored.
type ResourceRegistry interface {
	ClaimQSPI(devID string, unit QSPIUnit) (Bus, error)
	ReleaseQSPI(devID string, unit QSPIUnit)

	// ClaimFunctionPin reserves a pin routed to a peripheral function
	// (e.g. QSPI data lines); no GPIO handle is returned.
	ClaimFunctionPin(devID string, pin int) error
	ClaimGPIO(devID string, pin int) (GPIOPin, error)
	ReleasePin(devID string, pin int)
}
