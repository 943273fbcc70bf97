package boards

// Board describes what the PCB/SoC can do (controllers present, GPIO range).
// It must not include wiring choices (pins) or operating parameters (clock rates).
type Board struct {
	Name             string
	GPIOMin, GPIOMax int

	// QSPI-capable peripheral units, by number.
	QSPI []int
	// MaxQSPIHz bounds any clock requested on this board (0 = unbounded).
	MaxQSPIHz uint32
}

// HasQSPI reports whether unit is present on the board.
func (b Board) HasQSPI(unit int) bool {
	for _, u := range b.QSPI {
		if u == unit {
			return true
		}
	}
	return false
}

// HasPin reports whether n is inside the board's GPIO range.
func (b Board) HasPin(n int) bool { return n >= b.GPIOMin && n <= b.GPIOMax }

// ESP32S3 exposes SPI1..SPI3 (SPI1 is normally taken by flash) and GPIO0..48.
var ESP32S3 = Board{
	Name:      "esp32s3",
	GPIOMin:   0,
	GPIOMax:   48,
	QSPI:      []int{1, 2, 3},
	MaxQSPIHz: 80_000_000,
}

// RaspberryPi maps spidev buses 0..1 and BCM GPIO0..27.
var RaspberryPi = Board{
	Name:      "rpi",
	GPIOMin:   0,
	GPIOMax:   27,
	QSPI:      []int{0, 1},
	MaxQSPIHz: 125_000_000,
}

// Host is an inert board used with the fake platform.
var Host = Board{
	Name:    "host",
	GPIOMin: 0,
	GPIOMax: 63,
	QSPI:    []int{1, 2, 3},
}

// ByName resolves a board descriptor.
func ByName(name string) (Board, bool) {
	switch name {
	case ESP32S3.Name:
		return ESP32S3, true
	case RaspberryPi.Name:
		return RaspberryPi, true
	case Host.Name, "":
		return Host, true
	}
	return Board{}, false
}
