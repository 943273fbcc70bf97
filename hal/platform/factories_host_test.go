package platform

import (
	"errors"
	"testing"

	"qspitft-go/errcode"
	"qspitft-go/hal/halcore"
)

func TestHostQSPIRecordsFrames(t *testing.T) {
	h := NewHost()
	q := h.Unit(2)
	if err := q.TxFrame(halcore.Frame{Data: []byte{1}}); err != errcode.Closed {
		t.Fatalf("tx before configure: %v", err)
	}
	if err := q.Configure(halcore.QSPIConfig{Hz: 80_000_000, MaxTransfer: 16}); err != nil {
		t.Fatal(err)
	}
	data := []byte{0x55}
	if err := q.TxFrame(halcore.Frame{Instruction: 0x02, Address: 0x3A00, AddressBytes: 3, Data: data}); err != nil {
		t.Fatal(err)
	}
	data[0] = 0 // trace must hold a copy
	fr := q.Frames()
	if len(fr) != 1 || fr[0].Address != 0x3A00 || fr[0].Data[0] != 0x55 {
		t.Fatalf("unexpected trace: %+v", fr)
	}
	if got, _ := h.ByUnit(2); got != halcore.QSPIHost(q) {
		t.Fatal("factory must return a stable instance per unit")
	}
}

func TestHostQSPIFaults(t *testing.T) {
	q := NewHost().Unit(1)
	q.LimitFrequency(40_000_000)
	if err := q.Configure(halcore.QSPIConfig{Hz: 80_000_000}); err != errcode.ClockRejected {
		t.Fatalf("configure above limit: %v", err)
	}
	if err := q.CheckFrequency(50_000_000); err != errcode.ClockRejected {
		t.Fatalf("check above limit: %v", err)
	}
	if err := q.Configure(halcore.QSPIConfig{Hz: 40_000_000}); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	q.FailAfter(1, boom)
	if err := q.TxFrame(halcore.Frame{Data: []byte{1}}); err != nil {
		t.Fatal(err)
	}
	if err := q.TxFrame(halcore.Frame{Data: []byte{2}}); err != boom {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if err := q.TxFrame(halcore.Frame{Instruction: 0x0B, AddressBytes: 3}); err != boom {
		t.Fatalf("fault should persist, got %v", err)
	}
}

func TestFakePinRecordsEvents(t *testing.T) {
	h := NewHost()
	p := h.Pin(47)
	_ = p.ConfigureOutput(true)
	p.Set(false)
	p.Set(true)
	ev := p.Events()
	if len(ev) != 3 || !ev[0].Level || ev[1].Level || !ev[2].Level {
		t.Fatalf("unexpected events: %+v", ev)
	}
	if ev[2].At.Before(ev[1].At) {
		t.Fatal("events out of order")
	}
	if !p.IsOutput() || p.Number() != 47 || !p.Get() {
		t.Fatal("pin state mismatch")
	}
}
