package display

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"qspitft-go/errcode"
	"qspitft-go/hal/boards"
	"qspitft-go/hal/platform"
	"qspitft-go/hal/provider"
	"qspitft-go/hal/setups"
	"qspitft-go/types"
	"qspitft-go/x/logx"
)

const doc = `
board: esp32s3
qspi: {unit: 2, baud: 80MHz, sck: 9, data: [11, 12, 13, 14], max_transfer: 57600}
panel: {model: quick, width: 360, height: 360, invert: true, reset: 47, cs: 10, pixel_clock: 50MHz}
models:
  - name: quick
    columns: 360
    rows: 360
    reset_hold: 1ms
    reset_settle: 2ms
    sleep_out_delay: 1ms
    cmd_instruction: 0x02
    pixel_instruction: 0x32
    pixel_lines: 4
    pixel_format: rgb565
`

func setup(t *testing.T, edits ...string) *setups.Setup {
	t.Helper()
	d := doc
	for i := 0; i+1 < len(edits); i += 2 {
		d = strings.Replace(d, edits[i], edits[i+1], 1)
	}
	s, err := setups.Parse([]byte(d))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newRegistry(t *testing.T) (*provider.Registry, *platform.Host) {
	t.Helper()
	h := platform.NewHost()
	reg := provider.NewRegistry(boards.ESP32S3, h, h, provider.Options{})
	t.Cleanup(reg.Close)
	return reg, h
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	t.Cleanup(func() { logx.SetOutput(nil) })
	return &buf
}

func TestBringupAndClose(t *testing.T) {
	logs := captureLogs(t)
	reg, h := newRegistry(t)

	d, err := Bringup(context.Background(), reg, setup(t))
	if err != nil {
		t.Fatal(err)
	}
	if d.Bus().State() != types.StateReady || d.Panel().State() != types.StateReady {
		t.Fatal("not ready")
	}
	if w, hh := d.Panel().Size(); w != 360 || hh != 360 {
		t.Fatalf("size %dx%d", w, hh)
	}
	out := logs.String()
	if !strings.Contains(out, "qspi ready unit=2 clock=80MHz") || !strings.Contains(out, "panel ready model=quick size=360x360 pixel_clock=50MHz") {
		t.Fatalf("logs:\n%s", out)
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if d.Panel().State() != types.StateClosed || d.Bus().State() != types.StateClosed {
		t.Fatal("not closed")
	}
	if !h.Unit(2).Closed() {
		t.Fatal("unit not released")
	}
	if _, ok := reg.QSPIOwner(2); ok {
		t.Fatal("registry still holds unit")
	}
}

func TestBringupRejectsInvalidSetup(t *testing.T) {
	captureLogs(t)
	reg, h := newRegistry(t)
	_, err := Bringup(context.Background(), reg, setup(t, "cs: 10", "cs: 9"))
	if !errcode.IsConfiguration(err) || errcode.Of(err) != errcode.PinConflict {
		t.Fatalf("got %v", err)
	}
	if h.Unit(2).Configures() != 0 || len(h.Pin(47).Events()) != 0 {
		t.Fatal("hardware touched")
	}

	if _, err := Bringup(context.Background(), reg, nil); !errcode.IsConfiguration(err) {
		t.Fatalf("nil setup: %v", err)
	}
}

func TestBringupReleasesBusWhenPanelFails(t *testing.T) {
	logs := captureLogs(t)
	h := platform.NewHost()
	reg := provider.NewRegistry(boards.ESP32S3, h, h, provider.Options{TxTimeout: 10 * time.Millisecond})
	t.Cleanup(reg.Close)
	h.Unit(2).SetDelay(50 * time.Millisecond)

	_, err := Bringup(context.Background(), reg, setup(t))
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.Timeout {
		t.Fatalf("got %v", err)
	}
	if _, ok := reg.QSPIOwner(2); ok {
		t.Fatal("bus kept after panel failure")
	}
	if _, ok := reg.PinOwner(9); ok {
		t.Fatal("bus pins kept after panel failure")
	}
	if !strings.Contains(logs.String(), "[ERROR] panel init failed") {
		t.Fatalf("logs:\n%s", logs)
	}
}

func TestBringupHonoursCancelledContext(t *testing.T) {
	captureLogs(t)
	reg, h := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Bringup(ctx, reg, setup(t)); err != context.Canceled {
		t.Fatalf("got %v", err)
	}
	if h.Unit(2).Configures() != 0 {
		t.Fatal("bus configured after cancel")
	}
}
