package errcode

import "errors"

// Code is a stable, machine-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"

	// Configuration.
	PinConflict  Code = "pin_conflict"
	InvalidPin   Code = "invalid_pin"
	OutOfRange   Code = "out_of_range"
	BusNotReady  Code = "bus_not_ready"
	MissingModel Code = "missing_model"
	UnknownModel Code = "unknown_model"

	// Hardware / ownership.
	UnknownBus         Code = "unknown_bus"
	BusInUse           Code = "bus_in_use"
	UnknownPin         Code = "unknown_pin"
	PinInUse           Code = "pin_in_use"
	Timeout            Code = "timeout"
	ClockRejected      Code = "clock_rejected"
	TransferFailed     Code = "transfer_failed"
	AlreadyInitialized Code = "already_initialized"
	Failed             Code = "failed"
	Closed             Code = "closed"

	Error Code = "error" // generic fallback
)

// ConfigurationError reports caller-supplied values that violate an
// invariant. It is always detected before any hardware access.
type ConfigurationError struct {
	Op    string // e.g. "qspi.init"
	Field string // offending field, "" when not field-specific
	C     Code
	Msg   string
}

func (e *ConfigurationError) Error() string {
	s := "configuration error"
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	s += ": " + string(e.C)
	if e.Field != "" {
		s += " (" + e.Field + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *ConfigurationError) Code() Code { return e.C }

// HardwareError reports a bus or peripheral operation that failed or timed
// out. The controller that returned it must be discarded.
type HardwareError struct {
	Op  string
	C   Code
	Err error
}

func (e *HardwareError) Error() string {
	s := "hardware error"
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	s += ": " + string(e.C)
	if e.Err != nil && e.Err != error(e.C) {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *HardwareError) Unwrap() error { return e.Err }
func (e *HardwareError) Code() Code    { return e.C }

// Config builds a *ConfigurationError.
func Config(op, field string, c Code, msg string) error {
	return &ConfigurationError{Op: op, Field: field, C: c, Msg: msg}
}

// Hardware wraps err as a *HardwareError. The code is taken from err when it
// carries one, otherwise c is used.
func Hardware(op string, c Code, err error) error {
	if err != nil {
		if got := Of(err); got != Error {
			c = got
		}
	} else {
		err = c
	}
	return &HardwareError{Op: op, C: c, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// IsConfiguration reports whether err is (or wraps) a *ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsHardware reports whether err is (or wraps) a *HardwareError.
func IsHardware(err error) bool {
	var he *HardwareError
	return errors.As(err, &he)
}
