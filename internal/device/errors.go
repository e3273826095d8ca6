package device

import (
	"errors"
	"fmt"
)

// Device errors. ErrDeviceNotFound and ErrDeviceBusy are fatal at session
// start; ErrAcquisition aborts only the current document.
var (
	// ErrDeviceNotFound is returned when no usable scanner could be probed.
	ErrDeviceNotFound = errors.New("no scanning device found")

	// ErrDeviceBusy is returned when the unit is held by another process.
	ErrDeviceBusy = errors.New("scanning device is busy")

	// ErrAcquisition is returned when a scan job fails part way through.
	ErrAcquisition = errors.New("page acquisition failed")

	// ErrHandleClosed is returned for any use of a released handle.
	ErrHandleClosed = errors.New("device handle is closed")

	// ErrInvalidState is returned when a lifecycle step is called out of order.
	ErrInvalidState = errors.New("invalid device state")

	// ErrUnknownBackend is returned for a backend name that is not registered.
	ErrUnknownBackend = errors.New("unknown device backend")

	// ErrNoSelection is returned when the operator did not pick one of
	// several listed scanners.
	ErrNoSelection = errors.New("no scanner selected")
)

// acquisitionError wraps err as an ErrAcquisition.
func acquisitionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAcquisition, fmt.Sprintf(format, args...))
}

// State is the lifecycle state of a Handle.
type State int

const (
	// StateIdle is the state of a new handle.
	StateIdle State = iota

	// StateProbed means capabilities are known.
	StateProbed

	// StateOpen means the device session is held and no job is running.
	StateOpen

	// StateScanning means a job has been started and not finished.
	StateScanning

	// StateCancelling means a cancel request is in flight.
	StateCancelling

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbed:
		return "probed"
	case StateOpen:
		return "open"
	case StateScanning:
		return "scanning"
	case StateCancelling:
		return "cancelling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
