package qpanel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"qspitft-go/errcode"
)

// PixelFormat is the colour depth streamed to panel RAM.
type PixelFormat uint8

const (
	RGB565 PixelFormat = iota + 1
	RGB666
	RGB888
)

// BytesPerPixel reports the wire size of one pixel, or 0 if unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB565:
		return 2
	case RGB666, RGB888:
		return 3
	}
	return 0
}

func (f PixelFormat) colmod() byte {
	switch f {
	case RGB666:
		return colmod18
	case RGB888:
		return colmod24
	}
	return colmod16
}

func (f PixelFormat) String() string {
	switch f {
	case RGB565:
		return "rgb565"
	case RGB666:
		return "rgb666"
	case RGB888:
		return "rgb888"
	}
	return "unknown"
}

// ParsePixelFormat accepts the names returned by String.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	switch s {
	case "rgb565":
		return RGB565, true
	case "rgb666":
		return RGB666, true
	case "rgb888":
		return RGB888, true
	}
	return 0, false
}

// Command is one entry of a vendor init table. Delay is waited after the
// command has been sent.
type Command struct {
	Op    byte
	Data  []byte
	Delay time.Duration
}

// Model carries the constants of one panel part. There are no defaults:
// every timing and opcode has to come from the part's datasheet.
type Model struct {
	Name string

	// Addressable range of the controller's frame memory.
	Columns int16
	Rows    int16

	ResetHold     time.Duration // reset asserted
	ResetSettle   time.Duration // after release, before the first command
	SleepOutDelay time.Duration // after SLPOUT

	CmdInstruction   byte  // instruction carrying a DCS command in its address
	PixelInstruction byte  // instruction for RAM writes
	PixelLines       uint8 // data lines used for pixel data (1 or 4)
	PixelFormat      PixelFormat

	Init []Command // vendor table sent before COLMOD/MADCTL
}

// Validate reports the first missing or invalid field.
func (m Model) Validate() error {
	const op = "qpanel.model"
	switch {
	case m.Name == "":
		return errcode.Config(op, "name", errcode.MissingModel, "no panel model supplied")
	case m.Columns <= 0 || m.Rows <= 0:
		return errcode.Config(op, "columns/rows", errcode.InvalidParams, m.Name+": addressable range must be positive")
	case m.ResetHold <= 0:
		return errcode.Config(op, "reset_hold", errcode.InvalidParams, m.Name+": must be positive")
	case m.ResetSettle <= 0:
		return errcode.Config(op, "reset_settle", errcode.InvalidParams, m.Name+": must be positive")
	case m.SleepOutDelay <= 0:
		return errcode.Config(op, "sleep_out_delay", errcode.InvalidParams, m.Name+": must be positive")
	case m.CmdInstruction == 0:
		return errcode.Config(op, "cmd_instruction", errcode.InvalidParams, m.Name+": must be set")
	case m.PixelInstruction == 0:
		return errcode.Config(op, "pixel_instruction", errcode.InvalidParams, m.Name+": must be set")
	case m.PixelLines != 1 && m.PixelLines != 4:
		return errcode.Config(op, "pixel_lines", errcode.InvalidParams, m.Name+": must be 1 or 4")
	case m.PixelFormat.BytesPerPixel() == 0:
		return errcode.Config(op, "pixel_format", errcode.InvalidParams, m.Name+": unknown pixel format")
	}
	for i, c := range m.Init {
		if c.Delay < 0 {
			return errcode.Config(op, fmt.Sprintf("init[%d].delay", i), errcode.InvalidParams, "negative delay")
		}
	}
	return nil
}

// ---- Model registry ----

var (
	muModels sync.RWMutex
	models   = map[string]Model{}
)

// RegisterModel makes m available to LookupModel under m.Name.
// It panics on an invalid model or a duplicate name.
func RegisterModel(m Model) {
	if err := m.Validate(); err != nil {
		panic(fmt.Sprintf("qpanel: %v", err))
	}
	muModels.Lock()
	defer muModels.Unlock()
	if _, exists := models[m.Name]; exists {
		panic(fmt.Sprintf("qpanel: model already registered: %q", m.Name))
	}
	models[m.Name] = m
}

// LookupModel returns the model registered under name.
func LookupModel(name string) (Model, error) {
	muModels.RLock()
	m, ok := models[name]
	muModels.RUnlock()
	if !ok {
		return Model{}, errcode.Config("qpanel.model", "model", errcode.UnknownModel, fmt.Sprintf("%q is not registered", name))
	}
	return m, nil
}

// Models lists registered model names in order.
func Models() []string {
	muModels.RLock()
	defer muModels.RUnlock()
	out := make([]string, 0, len(models))
	for n := range models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
