// Package setups describes one board's QSPI wiring, its panel and the panel
// models it may use. Setups are loaded from YAML files:
//
//	board: esp32s3
//	qspi:  {unit: 2, baud: 80MHz, sck: 9, data: [11, 12, 13, 14], max_transfer: 57600}
//	panel: {model: st77916, width: 360, height: 360, invert: true, reset: 47, cs: 10, pixel_clock: 50MHz}
//	models:
//	  - name: st77916
//	    ...
package setups

import (
	"fmt"
	"time"

	"qspitft-go/drivers/qpanel"
	"qspitft-go/drivers/qspi"
	"qspitft-go/errcode"
	"qspitft-go/hal/boards"
	"qspitft-go/hal/halcore"
)

// Setup is the whole file.
type Setup struct {
	Board  string      `yaml:"board"`
	QSPI   QSPIPlan    `yaml:"qspi"`
	Panel  PanelPlan   `yaml:"panel"`
	Models []ModelSpec `yaml:"models,omitempty"`
}

// QSPIPlan is the bus wiring and operating parameters.
type QSPIPlan struct {
	Unit        int   `yaml:"unit"`
	Baud        Hz    `yaml:"baud"`
	SCK         int   `yaml:"sck"`
	Data        []int `yaml:"data"` // data0..data3
	MaxTransfer int   `yaml:"max_transfer"`
}

// PanelPlan is the panel wiring, geometry and orientation.
type PanelPlan struct {
	Model      string `yaml:"model"`
	Width      int16  `yaml:"width"`
	Height     int16  `yaml:"height"`
	OffsetX    int16  `yaml:"offset_x,omitempty"`
	OffsetY    int16  `yaml:"offset_y,omitempty"`
	SwapXY     bool   `yaml:"swap_xy,omitempty"`
	MirrorX    bool   `yaml:"mirror_x,omitempty"`
	MirrorY    bool   `yaml:"mirror_y,omitempty"`
	Invert     bool   `yaml:"invert,omitempty"`
	BGR        bool   `yaml:"bgr,omitempty"`
	Reset      int    `yaml:"reset"`
	CS         int    `yaml:"cs"`
	PixelClock Hz     `yaml:"pixel_clock"`
}

// ModelSpec is a panel model as written in a setup file.
type ModelSpec struct {
	Name             string        `yaml:"name"`
	Columns          int16         `yaml:"columns"`
	Rows             int16         `yaml:"rows"`
	ResetHold        time.Duration `yaml:"reset_hold"`
	ResetSettle      time.Duration `yaml:"reset_settle"`
	SleepOutDelay    time.Duration `yaml:"sleep_out_delay"`
	CmdInstruction   int           `yaml:"cmd_instruction"`
	PixelInstruction int           `yaml:"pixel_instruction"`
	PixelLines       int           `yaml:"pixel_lines"`
	PixelFormat      string        `yaml:"pixel_format"`
	Init             []CommandSpec `yaml:"init,omitempty"`
}

// CommandSpec is one vendor init entry.
type CommandSpec struct {
	Op    int           `yaml:"op"`
	Data  []int         `yaml:"data,omitempty"`
	Delay time.Duration `yaml:"delay,omitempty"`
}

const op = "setups"

// Model converts the setup entry into a driver model.
func (m ModelSpec) Model() (qpanel.Model, error) {
	field := func(f string) string { return "models[" + m.Name + "]." + f }
	pf, ok := qpanel.ParsePixelFormat(m.PixelFormat)
	if !ok {
		return qpanel.Model{}, errcode.Config(op, field("pixel_format"), errcode.InvalidParams, fmt.Sprintf("unknown format %q", m.PixelFormat))
	}
	cmdIns, err := toByte(field("cmd_instruction"), m.CmdInstruction)
	if err != nil {
		return qpanel.Model{}, err
	}
	pixIns, err := toByte(field("pixel_instruction"), m.PixelInstruction)
	if err != nil {
		return qpanel.Model{}, err
	}
	lines, err := toByte(field("pixel_lines"), m.PixelLines)
	if err != nil {
		return qpanel.Model{}, err
	}
	out := qpanel.Model{
		Name:             m.Name,
		Columns:          m.Columns,
		Rows:             m.Rows,
		ResetHold:        m.ResetHold,
		ResetSettle:      m.ResetSettle,
		SleepOutDelay:    m.SleepOutDelay,
		CmdInstruction:   cmdIns,
		PixelInstruction: pixIns,
		PixelLines:       lines,
		PixelFormat:      pf,
	}
	for i, c := range m.Init {
		f := field(fmt.Sprintf("init[%d]", i))
		cmd := qpanel.Command{Delay: c.Delay}
		if cmd.Op, err = toByte(f+".op", c.Op); err != nil {
			return qpanel.Model{}, err
		}
		if len(c.Data) > 0 {
			cmd.Data = make([]byte, len(c.Data))
		}
		for j, v := range c.Data {
			if cmd.Data[j], err = toByte(f+".data", v); err != nil {
				return qpanel.Model{}, err
			}
		}
		out.Init = append(out.Init, cmd)
	}
	if err := out.Validate(); err != nil {
		return qpanel.Model{}, err
	}
	return out, nil
}

func toByte(field string, v int) (byte, error) {
	if v < 0 || v > 0xFF {
		return 0, errcode.Config(op, field, errcode.OutOfRange, fmt.Sprintf("%d does not fit in a byte", v))
	}
	return byte(v), nil
}

// BoardDescriptor resolves the board name.
func (s *Setup) BoardDescriptor() (boards.Board, error) {
	b, ok := boards.ByName(s.Board)
	if !ok {
		return boards.Board{}, errcode.Config(op, "board", errcode.InvalidParams, fmt.Sprintf("unknown board %q", s.Board))
	}
	return b, nil
}

// ResolveModel looks name up in the setup's own models first, then in the
// process-wide model registry.
func (s *Setup) ResolveModel(name string) (qpanel.Model, error) {
	if name == "" {
		return qpanel.Model{}, errcode.Config(op, "panel.model", errcode.MissingModel, "no panel model named")
	}
	for _, m := range s.Models {
		if m.Name == name {
			return m.Model()
		}
	}
	return qpanel.LookupModel(name)
}

// BusConfig builds the bus controller configuration.
func (s *Setup) BusConfig() (qspi.Config, error) {
	if len(s.QSPI.Data) != 4 {
		return qspi.Config{}, errcode.Config(op, "qspi.data", errcode.InvalidParams,
			fmt.Sprintf("want 4 data pins, got %d", len(s.QSPI.Data)))
	}
	c := qspi.Config{
		Unit:        halcore.QSPIUnit(s.QSPI.Unit),
		Frequency:   uint32(s.QSPI.Baud),
		SCK:         s.QSPI.SCK,
		MaxTransfer: s.QSPI.MaxTransfer,
	}
	copy(c.Data[:], s.QSPI.Data)
	return c, nil
}

// PanelConfig builds the panel controller configuration.
func (s *Setup) PanelConfig() (qpanel.Config, error) {
	m, err := s.ResolveModel(s.Panel.Model)
	if err != nil {
		return qpanel.Config{}, err
	}
	p := s.Panel
	return qpanel.Config{
		Width:      p.Width,
		Height:     p.Height,
		SwapXY:     p.SwapXY,
		MirrorX:    p.MirrorX,
		MirrorY:    p.MirrorY,
		Invert:     p.Invert,
		BGR:        p.BGR,
		Reset:      p.Reset,
		CS:         p.CS,
		PixelClock: uint32(p.PixelClock),
		OffsetX:    p.OffsetX,
		OffsetY:    p.OffsetY,
		Model:      m,
	}, nil
}

// Validate runs every check that does not need hardware: board
// capabilities, bus and panel invariants, and model completeness.
func (s *Setup) Validate() error {
	b, err := s.BoardDescriptor()
	if err != nil {
		return err
	}
	bc, err := s.BusConfig()
	if err != nil {
		return err
	}
	if err := bc.Validate(); err != nil {
		return err
	}
	if !b.HasQSPI(int(bc.Unit)) {
		return errcode.Config(op, "qspi.unit", errcode.OutOfRange, fmt.Sprintf("board %s has no QSPI unit %d", b.Name, bc.Unit))
	}
	if b.MaxQSPIHz != 0 && (bc.Frequency > b.MaxQSPIHz || uint32(s.Panel.PixelClock) > b.MaxQSPIHz) {
		return errcode.Config(op, "baud", errcode.OutOfRange, fmt.Sprintf("board %s clocks at most %s", b.Name, Hz(b.MaxQSPIHz)))
	}
	pc, err := s.PanelConfig()
	if err != nil {
		return err
	}
	if err := pc.Check(bc); err != nil {
		return err
	}
	for _, n := range append(bc.Pins(), pc.Reset, pc.CS) {
		if !b.HasPin(n) {
			return errcode.Config(op, "pins", errcode.InvalidPin, fmt.Sprintf("board %s has no GPIO%d", b.Name, n))
		}
	}
	seen := make(map[string]bool, len(s.Models))
	for _, m := range s.Models {
		if seen[m.Name] {
			return errcode.Config(op, "models", errcode.InvalidParams, fmt.Sprintf("model %q defined twice", m.Name))
		}
		seen[m.Name] = true
		if _, err := m.Model(); err != nil {
			return err
		}
	}
	return nil
}
