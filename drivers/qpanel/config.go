package qpanel

import (
	"fmt"

	"qspitft-go/drivers/qspi"
	"qspitft-go/errcode"
	"qspitft-go/types"
)

// Config describes one panel on a QSPI bus.
type Config struct {
	Width, Height int16

	SwapXY  bool
	MirrorX bool
	MirrorY bool
	Invert  bool
	BGR     bool

	Reset int // reset line, active low
	CS    int // chip select, active low

	PixelClock uint32 // Hz, used for RAM writes only

	// Gap between the visible area and the controller's frame memory.
	OffsetX, OffsetY int16

	Model Model
}

const opConfig = "qpanel.config"

// Validate checks cfg against itself, its model and the bus it will use.
// The bus must be Ready. Nothing here touches hardware.
func (c Config) Validate(bus *qspi.Bus) error {
	if bus == nil {
		return errcode.Config(opConfig, "bus", errcode.BusNotReady, "no bus")
	}
	if st := bus.State(); st != types.StateReady {
		return errcode.Config(opConfig, "bus", errcode.BusNotReady, "bus is "+st.String())
	}
	return c.Check(bus.Config())
}

// Check is Validate without the bus state: it only needs the bus
// configuration, so setups can be checked offline.
func (c Config) Check(bc qspi.Config) error {
	const op = opConfig
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errcode.Config(op, "width/height", errcode.InvalidParams, "must be positive")
	}
	if c.OffsetX < 0 || c.OffsetY < 0 {
		return errcode.Config(op, "offset", errcode.InvalidParams, "must not be negative")
	}
	cols, rows := c.Model.Columns, c.Model.Rows
	if c.SwapXY {
		cols, rows = rows, cols
	}
	if int(c.Width)+int(c.OffsetX) > int(cols) || int(c.Height)+int(c.OffsetY) > int(rows) {
		return errcode.Config(op, "width/height", errcode.OutOfRange,
			fmt.Sprintf("%dx%d+%d+%d outside %s range %dx%d", c.Width, c.Height, c.OffsetX, c.OffsetY, c.Model.Name, cols, rows))
	}
	if c.PixelClock == 0 {
		return errcode.Config(op, "pixel_clock", errcode.InvalidParams, "must be positive")
	}
	if c.Reset < 0 {
		return errcode.Config(op, "reset", errcode.InvalidPin, "negative pin")
	}
	if c.CS < 0 {
		return errcode.Config(op, "cs", errcode.InvalidPin, "negative pin")
	}
	if c.Reset == c.CS {
		return errcode.Config(op, "cs", errcode.PinConflict, fmt.Sprintf("pin %d also used by reset", c.CS))
	}
	for _, p := range []struct {
		name string
		n    int
	}{{"reset", c.Reset}, {"cs", c.CS}} {
		if name, ok := bc.Uses(p.n); ok {
			return errcode.Config(op, p.name, errcode.PinConflict, fmt.Sprintf("pin %d also used by bus %s", p.n, name))
		}
	}
	// CASET and RASET carry four data bytes; a pixel is at most three.
	if bc.MaxTransfer < windowArgBytes {
		return errcode.Config(op, "max_transfer", errcode.OutOfRange,
			fmt.Sprintf("%d bytes cannot carry a window command (%d)", bc.MaxTransfer, windowArgBytes))
	}
	for i, cmd := range c.Model.Init {
		if len(cmd.Data) > bc.MaxTransfer {
			return errcode.Config(op, fmt.Sprintf("model.init[%d]", i), errcode.OutOfRange,
				fmt.Sprintf("%d data bytes exceed max transfer %d", len(cmd.Data), bc.MaxTransfer))
		}
	}
	return nil
}
