package provider

import (
	"sync"
	"time"

	"qspitft-go/errcode"
	"qspitft-go/hal/boards"
	"qspitft-go/hal/halcore"

	"tinygo.org/x/drivers"
)

// Ensure the provider satisfies the contracts at compile time.
var (
	_ halcore.ResourceRegistry = (*Registry)(nil)
	_ halcore.Bus              = (*qspiBus)(nil)
	_ drivers.SPI              = (*qspiBus)(nil)
)

// DefaultTxTimeout bounds each frame, including time spent queued.
const DefaultTxTimeout = 250 * time.Millisecond

// Options tunes the registry. Zero values pick defaults.
type Options struct {
	TxTimeout time.Duration
	QueueLen  int
}

// -----------------------------------------------------------------------------
// QSPI owner (one worker per unit)
// -----------------------------------------------------------------------------

// request posted to the per-unit worker
type qspiReq struct {
	f    halcore.Frame
	done chan error // buffered(1); worker replies best-effort
}

// per-unit owner that hosts a single worker goroutine
type qspiOwner struct {
	unit halcore.QSPIUnit
	hw   halcore.QSPIHost
	reqs chan qspiReq
	quit chan struct{}
	once sync.Once
}

func newQSPIOwner(unit halcore.QSPIUnit, hw halcore.QSPIHost, qlen int) *qspiOwner {
	o := &qspiOwner{
		unit: unit,
		hw:   hw,
		reqs: make(chan qspiReq, qlen),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *qspiOwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := o.hw.TxFrame(req.f)
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *qspiOwner) stop() { o.once.Do(func() { close(o.quit) }) }

// qspiBus is the handle returned by ClaimQSPI. Frames are posted to the
// owner's worker; single-line clients see it as a drivers.SPI.
type qspiBus struct {
	o       *qspiOwner
	board   boards.Board
	timeout time.Duration
	release func()
}

func (b *qspiBus) Configure(cfg halcore.QSPIConfig) error {
	if b.board.MaxQSPIHz != 0 && cfg.Hz > b.board.MaxQSPIHz {
		return errcode.ClockRejected
	}
	return b.o.hw.Configure(cfg)
}

func (b *qspiBus) CheckFrequency(hz uint32) error {
	if b.board.MaxQSPIHz != 0 && hz > b.board.MaxQSPIHz {
		return errcode.ClockRejected
	}
	return b.o.hw.CheckFrequency(hz)
}

func (b *qspiBus) TxFrame(f halcore.Frame) error {
	req := qspiReq{f: f, done: make(chan error, 1)}

	t := time.NewTimer(b.timeout)
	defer t.Stop()

	// Bounded enqueue
	select {
	case b.o.reqs <- req:
	case <-b.o.quit:
		return errcode.Closed
	case <-t.C:
		return errcode.Timeout
	}

	// Completion, sharing the same deadline.
	select {
	case err := <-req.done:
		return err
	case <-b.o.quit:
		return errcode.Closed
	case <-t.C:
	}

	// The worker owns the frame now. Wait for it to leave the unit (or for
	// the unit to be released) so the caller can end the transaction.
	select {
	case <-req.done:
	case <-b.o.quit:
	}
	return errcode.Timeout
}

// Close gives the unit back to the registry.
func (b *qspiBus) Close() error {
	b.release()
	return nil
}

// Tx implements drivers.SPI as a raw single-line transfer.
func (b *qspiBus) Tx(w, r []byte) error {
	return b.TxFrame(halcore.Frame{Data: w, Read: r})
}

// Transfer implements drivers.SPI.
func (b *qspiBus) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.Tx([]byte{w}, r[:])
	return r[0], err
}

// -----------------------------------------------------------------------------
// Resource registry (QSPI units + pins)
// -----------------------------------------------------------------------------

// Registry is the process-wide owner of units and pins for one board.
type Registry struct {
	mu sync.Mutex

	board boards.Board
	units halcore.QSPIFactory
	pins  halcore.PinFactory
	opts  Options

	qspiOwners map[halcore.QSPIUnit]*qspiOwner
	qspiUsers  map[halcore.QSPIUnit]string // unit -> devID

	pinOwners map[int]pinOwner // pin -> owner
}

type pinOwner struct {
	devID    string
	function bool // routed to a peripheral, no GPIO handle
}

// NewRegistry builds a registry for board over the given factories.
func NewRegistry(board boards.Board, units halcore.QSPIFactory, pins halcore.PinFactory, opts Options) *Registry {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = 16
	}
	return &Registry{
		board:      board,
		units:      units,
		pins:       pins,
		opts:       opts,
		qspiOwners: make(map[halcore.QSPIUnit]*qspiOwner),
		qspiUsers:  make(map[halcore.QSPIUnit]string),
		pinOwners:  make(map[int]pinOwner),
	}
}

// Board returns the descriptor the registry enforces.
func (r *Registry) Board() boards.Board { return r.board }

func (r *Registry) ClaimQSPI(devID string, unit halcore.QSPIUnit) (halcore.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.board.HasQSPI(int(unit)) {
		return nil, errcode.UnknownBus
	}
	if owner, taken := r.qspiUsers[unit]; taken && owner != "" {
		return nil, errcode.BusInUse
	}
	hw, ok := r.units.ByUnit(unit)
	if !ok || hw == nil {
		return nil, errcode.UnknownBus
	}
	o := newQSPIOwner(unit, hw, r.opts.QueueLen)
	r.qspiOwners[unit] = o
	r.qspiUsers[unit] = devID

	return &qspiBus{
		o:       o,
		board:   r.board,
		timeout: r.opts.TxTimeout,
		release: func() { r.ReleaseQSPI(devID, unit) },
	}, nil
}

func (r *Registry) ReleaseQSPI(devID string, unit halcore.QSPIUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.qspiUsers[unit]; !ok || owner != devID {
		return
	}
	if o := r.qspiOwners[unit]; o != nil {
		o.stop()
		_ = o.hw.Close()
	}
	delete(r.qspiOwners, unit)
	delete(r.qspiUsers, unit)
}

// Unified pin claims

func (r *Registry) claimPinLocked(devID string, n int, function bool) error {
	if !r.board.HasPin(n) {
		return errcode.UnknownPin
	}
	if owner, inUse := r.pinOwners[n]; inUse && owner.devID != "" {
		return errcode.PinInUse
	}
	r.pinOwners[n] = pinOwner{devID: devID, function: function}
	return nil
}

func (r *Registry) ClaimFunctionPin(devID string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimPinLocked(devID, n, true)
}

func (r *Registry) ClaimGPIO(devID string, n int) (halcore.GPIOPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, inUse := r.pinOwners[n]; inUse && owner.devID != "" {
		return nil, errcode.PinInUse
	}
	p, ok := r.pins.ByNumber(n)
	if !ok || p == nil {
		return nil, errcode.UnknownPin
	}
	if err := r.claimPinLocked(devID, n, false); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Registry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.pinOwners[n]; ok && owner.devID == devID {
		delete(r.pinOwners, n)
	}
}

// PinOwner reports who holds pin n.
func (r *Registry) PinOwner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.pinOwners[n]
	return o.devID, ok
}

// QSPIOwner reports who holds unit.
func (r *Registry) QSPIOwner(unit halcore.QSPIUnit) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.qspiUsers[unit]
	return o, ok
}

// Close stops background workers and releases every unit.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for unit, o := range r.qspiOwners {
		if o != nil {
			o.stop()
			_ = o.hw.Close()
		}
		delete(r.qspiOwners, unit)
		delete(r.qspiUsers, unit)
	}
}
