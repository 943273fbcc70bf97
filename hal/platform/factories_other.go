//go:build !linux

package platform

import (
	"errors"

	"qspitft-go/hal/halcore"
)

// Periph is only available on Linux.
type Periph struct{}

// NewPeriph always fails off Linux.
func NewPeriph() (*Periph, error) {
	return nil, errors.New("platform: periph.io backend requires linux")
}

func (p *Periph) ByUnit(halcore.QSPIUnit) (halcore.QSPIHost, bool) { return nil, false }
func (p *Periph) ByNumber(int) (halcore.GPIOPin, bool)             { return nil, false }
