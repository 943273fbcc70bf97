// Package lifecycle implements the linear init state machine used by the
// controllers. There is no way back from Failed: a controller that failed
// part-way through bring-up must be rebuilt.
package lifecycle

import (
	"sync"

	"qspitft-go/errcode"
	"qspitft-go/types"
)

// Machine guards one controller's state.
type Machine struct {
	mu    sync.Mutex
	state types.State
	err   error // first failure, kept for diagnostics
}

// State returns the current state.
func (m *Machine) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error that moved the machine to Failed, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Begin moves Unconfigured -> Configuring. Any other state is rejected
// with a HardwareError; init is never idempotent.
func (m *Machine) Begin(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case types.StateUnconfigured:
		m.state = types.StateConfiguring
		return nil
	case types.StateFailed:
		return errcode.Hardware(op, errcode.Failed, nil)
	case types.StateClosed:
		return errcode.Hardware(op, errcode.Closed, nil)
	default:
		return errcode.Hardware(op, errcode.AlreadyInitialized, nil)
	}
}

// Fail records err and moves to Failed. It returns err for chaining.
func (m *Machine) Fail(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.StateClosed {
		m.state = types.StateFailed
	}
	if m.err == nil {
		m.err = err
	}
	return err
}

// Ready moves Configuring -> Ready.
func (m *Machine) Ready() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == types.StateConfiguring {
		m.state = types.StateReady
	}
}

// Close moves any state to Closed and reports the state it left.
func (m *Machine) Close() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = types.StateClosed
	return prev
}

// Require returns a HardwareError unless the machine is Ready.
func (m *Machine) Require(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == types.StateReady {
		return nil
	}
	if m.state == types.StateClosed {
		return errcode.Hardware(op, errcode.Closed, nil)
	}
	return errcode.Hardware(op, errcode.BusNotReady, nil)
}
