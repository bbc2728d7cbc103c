package saleae

import "errors"

// Error taxonomy of the host API.  Callers test with errors.Is; everything
// else is wrapped with context via fmt.Errorf.
var (
	// ErrArg is returned for host-side violations: index out of range,
	// nil sink, malformed probe configuration.
	ErrArg = errors.New("saleae: invalid argument")

	// ErrBug indicates an internal invariant was violated.
	ErrBug = errors.New("saleae: internal error")

	// ErrSamplerate is returned when a requested rate is not in the
	// supported set.
	ErrSamplerate = errors.New("saleae: unsupported samplerate")

	// ErrMalloc is returned when the transfer pool cannot be allocated.
	ErrMalloc = errors.New("saleae: transfer pool allocation failed")

	// ErrNotOpen is returned for operations that need a claimed device.
	ErrNotOpen = errors.New("saleae: device not open")

	// ErrDeviceNotFound is returned when a device cannot be located on
	// the bus, e.g. because it has not finished renumerating.
	ErrDeviceNotFound = errors.New("saleae: device not found on the bus")
)
