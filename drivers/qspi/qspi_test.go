package qspi

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"qspitft-go/errcode"
	"qspitft-go/hal/boards"
	"qspitft-go/hal/halcore"
	"qspitft-go/hal/platform"
	"qspitft-go/hal/provider"
	"qspitft-go/types"
)

// ---- Helpers ----

func newRegistry(t *testing.T) (*provider.Registry, *platform.Host) {
	t.Helper()
	h := platform.NewHost()
	r := provider.NewRegistry(boards.ESP32S3, h, h, provider.Options{TxTimeout: 50 * time.Millisecond})
	t.Cleanup(r.Close)
	return r, h
}

func validConfig() Config {
	return Config{
		Unit:        2,
		Frequency:   80_000_000,
		SCK:         9,
		Data:        [4]int{11, 12, 13, 14},
		MaxTransfer: 360 * 80 * 16 / 8,
	}
}

// ---- Tests ----

func TestInitReady(t *testing.T) {
	reg, h := newRegistry(t)
	b := New(reg, validConfig())
	if b.State() != types.StateUnconfigured {
		t.Fatalf("state = %v", b.State())
	}
	if err := b.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if b.State() != types.StateReady {
		t.Fatalf("state = %v", b.State())
	}
	cfg, ok := h.Unit(2).Config()
	if !ok || cfg.Hz != 80_000_000 || cfg.SCK != 9 || cfg.Data != [4]int{11, 12, 13, 14} || cfg.MaxTransfer != 57600 {
		t.Fatalf("unit configured with %+v", cfg)
	}
	for _, p := range []int{9, 11, 12, 13, 14} {
		if owner, _ := reg.PinOwner(p); owner != "qspi2" {
			t.Fatalf("pin %d owner = %q", p, owner)
		}
	}
}

func TestInitReadyForValidConfigs(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		reg, _ := newRegistry(t)
		perm := rnd.Perm(49)
		cfg := Config{
			Unit:        halcore.QSPIUnit(1 + rnd.Intn(3)),
			Frequency:   uint32(1 + rnd.Intn(80_000_000)),
			SCK:         perm[0],
			Data:        [4]int{perm[1], perm[2], perm[3], perm[4]},
			MaxTransfer: 1 + rnd.Intn(1<<16),
		}
		b := New(reg, cfg)
		if err := b.Init(); err != nil {
			t.Fatalf("config %+v: %v", cfg, err)
		}
		if b.State() != types.StateReady {
			t.Fatalf("config %+v: state %v", cfg, b.State())
		}
	}
}

func TestInitPinCollision(t *testing.T) {
	cases := map[string]func(*Config){
		"sck=data0":   func(c *Config) { c.SCK = c.Data[0] },
		"data1=data3": func(c *Config) { c.Data[1] = c.Data[3] },
		"data2=sck":   func(c *Config) { c.Data[2] = c.SCK },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			reg, h := newRegistry(t)
			cfg := validConfig()
			mut(&cfg)
			b := New(reg, cfg)
			err := b.Init()
			if !errcode.IsConfiguration(err) || errcode.Of(err) != errcode.PinConflict {
				t.Fatalf("got %v, want pin_conflict configuration error", err)
			}
			if b.State() != types.StateFailed {
				t.Fatalf("state = %v", b.State())
			}
			if _, claimed := reg.QSPIOwner(cfg.Unit); claimed {
				t.Fatal("unit was claimed")
			}
			if h.Unit(cfg.Unit).Configures() != 0 {
				t.Fatal("peripheral was touched")
			}
		})
	}
}

func TestInitInvalidFields(t *testing.T) {
	cases := map[string]func(*Config){
		"frequency":    func(c *Config) { c.Frequency = 0 },
		"max_transfer": func(c *Config) { c.MaxTransfer = 0 },
		"negative pin": func(c *Config) { c.SCK = -1 },
		"unit":         func(c *Config) { c.Unit = -1 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			reg, _ := newRegistry(t)
			cfg := validConfig()
			mut(&cfg)
			if err := New(reg, cfg).Init(); !errcode.IsConfiguration(err) {
				t.Fatalf("got %v, want configuration error", err)
			}
		})
	}
}

func TestSecondControllerSameUnit(t *testing.T) {
	reg, _ := newRegistry(t)
	a := New(reg, validConfig())
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	cfg := validConfig()
	cfg.SCK, cfg.Data = 1, [4]int{2, 3, 4, 5}
	b := New(reg, cfg)
	err := b.Init()
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.BusInUse {
		t.Fatalf("got %v, want bus_in_use hardware error", err)
	}
	if b.State() != types.StateFailed {
		t.Fatalf("state = %v", b.State())
	}
	if a.State() != types.StateReady {
		t.Fatal("first controller disturbed")
	}
}

func TestInitPinAlreadyClaimed(t *testing.T) {
	reg, _ := newRegistry(t)
	if _, err := reg.ClaimGPIO("other", 13); err != nil {
		t.Fatal(err)
	}
	b := New(reg, validConfig())
	err := b.Init()
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.PinInUse {
		t.Fatalf("got %v", err)
	}
	// Everything claimed before the failure is given back.
	if _, ok := reg.QSPIOwner(2); ok {
		t.Fatal("unit not released")
	}
	if _, ok := reg.PinOwner(9); ok {
		t.Fatal("sck not released")
	}
}

func TestInitUnknownUnitAndClock(t *testing.T) {
	reg, h := newRegistry(t)
	cfg := validConfig()
	cfg.Unit = 5
	if err := New(reg, cfg).Init(); errcode.Of(err) != errcode.UnknownBus || !errcode.IsHardware(err) {
		t.Fatalf("unknown unit: %v", err)
	}

	h.Unit(2).LimitFrequency(40_000_000)
	b := New(reg, validConfig())
	if err := b.Init(); errcode.Of(err) != errcode.ClockRejected || !errcode.IsHardware(err) {
		t.Fatalf("clock: %v", err)
	}
	if _, ok := reg.QSPIOwner(2); ok {
		t.Fatal("unit not released after clock failure")
	}
}

func TestInitTwiceRejected(t *testing.T) {
	reg, _ := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	err := b.Init()
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.AlreadyInitialized {
		t.Fatalf("got %v", err)
	}
	if b.State() != types.StateReady {
		t.Fatal("rejected init must not change state")
	}
}

func TestSendFramesAndClocks(t *testing.T) {
	reg, h := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Send(halcore.Frame{Data: []byte{1}}); !errcode.IsHardware(err) {
		t.Fatalf("send before init: %v", err)
	}
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	if b.PixelClock() != 80_000_000 {
		t.Fatal("pixel clock should default to bus clock")
	}
	if err := b.SetPixelClock(50_000_000); err != nil {
		t.Fatal(err)
	}
	if err := b.Send(halcore.Frame{Instruction: 0x02, Address: 0x2900, AddressBytes: 3}); err != nil {
		t.Fatal(err)
	}
	if err := b.SendPixels(halcore.Frame{Instruction: 0x32, Address: 0x2C00, AddressBytes: 3, Data: make([]byte, 64), DataLines: 4}); err != nil {
		t.Fatal(err)
	}
	fr := h.Unit(2).Frames()
	if len(fr) != 2 || fr[0].Hz != 80_000_000 || fr[1].Hz != 50_000_000 || fr[1].Lines() != 4 {
		t.Fatalf("unexpected trace: %+v", fr)
	}

	if err := b.Send(halcore.Frame{Data: make([]byte, 57601)}); errcode.Of(err) != errcode.OutOfRange {
		t.Fatalf("oversized frame: %v", err)
	}
	if err := b.Send(halcore.Frame{Data: []byte{1}, DataLines: 3}); !errcode.IsConfiguration(err) {
		t.Fatalf("bad lines: %v", err)
	}
	if err := b.SetPixelClock(0); !errcode.IsConfiguration(err) {
		t.Fatalf("zero pixel clock: %v", err)
	}
	h.Unit(2).LimitFrequency(60_000_000)
	if err := b.SetPixelClock(70_000_000); errcode.Of(err) != errcode.ClockRejected {
		t.Fatalf("pixel clock above limit: %v", err)
	}
}

func TestSendHardwareFailure(t *testing.T) {
	reg, h := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	h.Unit(2).FailAfter(0, errors.New("no ack"))
	err := b.Send(halcore.Frame{Data: []byte{1}})
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.TransferFailed {
		t.Fatalf("got %v", err)
	}

	h.Unit(2).FailAfter(-1, nil)
	h.Unit(2).SetDelay(200 * time.Millisecond)
	err = b.Send(halcore.Frame{Data: []byte{1}})
	if !errcode.IsHardware(err) || errcode.Of(err) != errcode.Timeout {
		t.Fatalf("got %v, want timeout", err)
	}
}

func TestSendRacingClose(t *testing.T) {
	reg, _ := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			err := b.SendPixels(halcore.Frame{Instruction: 0x32, AddressBytes: 3, Data: []byte{1, 2}, DataLines: 4})
			if err != nil && errcode.Of(err) != errcode.Closed {
				t.Errorf("send %d: %v", i, err)
				return
			}
			if err := b.SetPixelClock(40_000_000); err != nil && errcode.Of(err) != errcode.Closed {
				t.Errorf("pixel clock %d: %v", i, err)
				return
			}
		}
	}()
	time.Sleep(time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	<-done
	if err := b.Send(halcore.Frame{Data: []byte{1}}); errcode.Of(err) != errcode.Closed {
		t.Fatalf("send after close: %v", err)
	}
}

func TestDriversSPI(t *testing.T) {
	reg, h := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 3)
	if err := b.Tx([]byte{0x04, 0, 0}, r); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Transfer(0xAA); err != nil {
		t.Fatal(err)
	}
	fr := h.Unit(2).Frames()
	if len(fr) != 2 || !fr[0].Raw() || fr[1].Data[0] != 0xAA {
		t.Fatalf("unexpected trace: %+v", fr)
	}
}

func TestCloseReleasesAndDefersWithClients(t *testing.T) {
	reg, h := newRegistry(t)
	b := New(reg, validConfig())
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	if err := b.Attach("panel"); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if !b.Pending() || b.State() != types.StateReady {
		t.Fatal("close with clients should be deferred")
	}
	if _, ok := reg.QSPIOwner(2); !ok {
		t.Fatal("unit released too early")
	}
	b.Detach("panel")
	if b.State() != types.StateClosed {
		t.Fatalf("state = %v", b.State())
	}
	if _, ok := reg.QSPIOwner(2); ok {
		t.Fatal("unit not released")
	}
	if _, ok := reg.PinOwner(11); ok {
		t.Fatal("pins not released")
	}
	if !h.Unit(2).Closed() {
		t.Fatal("hardware not closed")
	}
	if err := b.Close(); err != nil {
		t.Fatal("close must be idempotent")
	}

	// A fresh controller can take the unit again.
	if err := New(reg, validConfig()).Init(); err != nil {
		t.Fatalf("re-init after close: %v", err)
	}
}
