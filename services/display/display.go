// Package display brings a bus and its panel up in order from a setup and
// hands back a single handle for drawing and teardown.
package display

import (
	"context"
	"errors"
	"strconv"
	"time"

	"qspitft-go/drivers/qpanel"
	"qspitft-go/drivers/qspi"
	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
	"qspitft-go/hal/setups"
	"qspitft-go/x/logx"
)

// Display owns a bus controller and the panel on it.
type Display struct {
	bus   *qspi.Bus
	panel *qpanel.Device
}

func (d *Display) Bus() *qspi.Bus        { return d.bus }
func (d *Display) Panel() *qpanel.Device { return d.panel }

// Bringup validates s, initialises the bus and then the panel. On any
// failure everything already claimed is released again. ctx is checked
// between stages; a stage that has started runs to completion.
func Bringup(ctx context.Context, reg halcore.ResourceRegistry, s *setups.Setup) (*Display, error) {
	if s == nil {
		return nil, errcode.Config("display.bringup", "setup", errcode.InvalidParams, "nil setup")
	}
	if err := s.Validate(); err != nil {
		logx.Error("setup rejected", err)
		return nil, err
	}
	bc, _ := s.BusConfig()
	pc, _ := s.PanelConfig()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	bus := qspi.New(reg, bc)
	if err := bus.Init(); err != nil {
		logx.Error("qspi init failed", err, "unit", int(bc.Unit))
		return nil, err
	}
	logx.Info("qspi ready", "unit", int(bc.Unit), "clock", setups.Hz(bc.Frequency), "max_transfer", bc.MaxTransfer)

	if err := ctx.Err(); err != nil {
		_ = bus.Close()
		return nil, err
	}
	panel := qpanel.New(bus, reg, pc)
	if err := panel.Init(); err != nil {
		logx.Error("panel init failed", err, "model", pc.Model.Name)
		_ = bus.Close()
		return nil, err
	}
	logx.Info("panel ready",
		"model", pc.Model.Name,
		"size", sizeString(pc.Width, pc.Height),
		"pixel_clock", setups.Hz(pc.PixelClock),
		"took", time.Since(start).Round(time.Millisecond))

	return &Display{bus: bus, panel: panel}, nil
}

// Close shuts the panel down, then releases the bus.
func (d *Display) Close() error {
	perr := d.panel.Close()
	berr := d.bus.Close()
	if err := errors.Join(perr, berr); err != nil {
		logx.Warn("display close", "err", err)
		return err
	}
	logx.Debug("display closed")
	return nil
}

func sizeString(w, h int16) string {
	return strconv.Itoa(int(w)) + "x" + strconv.Itoa(int(h))
}
