package qspi

import (
	"strconv"

	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
)

// Config is the bus configuration. All fields are required.
type Config struct {
	// Unit selects the physical peripheral instance.
	Unit halcore.QSPIUnit
	// Frequency is the command-phase clock in Hz.
	Frequency uint32
	// SCK and Data are GPIO numbers; all five must be distinct.
	SCK  int
	Data [4]int
	// MaxTransfer bounds the data phase of a single frame, in bytes
	// (DMA descriptor budget).
	MaxTransfer int
}

// Pins returns sck, data0..data3.
func (c Config) Pins() []int {
	return []int{c.SCK, c.Data[0], c.Data[1], c.Data[2], c.Data[3]}
}

var pinNames = [...]string{"sck", "data0", "data1", "data2", "data3"}

// Validate checks the invariants that do not need hardware.
func (c Config) Validate() error {
	const op = "qspi.config"
	if c.Unit < 0 {
		return errcode.Config(op, "unit", errcode.InvalidParams, "must not be negative")
	}
	if c.Frequency == 0 {
		return errcode.Config(op, "frequency", errcode.InvalidParams, "must be positive")
	}
	if c.MaxTransfer <= 0 {
		return errcode.Config(op, "max_transfer", errcode.InvalidParams, "must be positive")
	}
	pins := c.Pins()
	for i, p := range pins {
		if p < 0 {
			return errcode.Config(op, pinNames[i], errcode.InvalidPin, "must not be negative")
		}
		for j := 0; j < i; j++ {
			if pins[j] == p {
				return errcode.Config(op, pinNames[i], errcode.PinConflict,
					"pin "+strconv.Itoa(p)+" also used by "+pinNames[j])
			}
		}
	}
	return nil
}

// Uses reports whether pin n is one of the bus pins, and which one.
func (c Config) Uses(n int) (string, bool) {
	for i, p := range c.Pins() {
		if p == n {
			return pinNames[i], true
		}
	}
	return "", false
}
