package qpanel

// MIPI DCS opcodes used during bring-up and drawing.
const (
	cmdSLPIN   = 0x10
	cmdSLPOUT  = 0x11
	cmdINVOFF  = 0x20
	cmdINVON   = 0x21
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
	cmdRAMWRC  = 0x3C

	// --- MADCTL bits (0x36) ---
	madMY  = 0x80 // row address order
	madMX  = 0x40 // column address order
	madMV  = 0x20 // row/column exchange
	madBGR = 0x08

	// --- COLMOD values (0x3A) ---
	colmod16 = 0x55
	colmod18 = 0x66
	colmod24 = 0x77

	// CASET/RASET argument: start and end, 16 bits each.
	windowArgBytes = 4
)

// madctl computes the memory access control byte for the orientation and
// colour order in cfg.
func madctl(cfg Config) byte {
	var v byte
	if cfg.SwapXY {
		v |= madMV
	}
	if cfg.MirrorX {
		v |= madMX
	}
	if cfg.MirrorY {
		v |= madMY
	}
	if cfg.BGR {
		v |= madBGR
	}
	return v
}
