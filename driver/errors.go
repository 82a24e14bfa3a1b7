package driver

import "errors"

// Errors returned by drivers.
var (
	// ErrNotRegistered is returned by Open for an unknown driver name.
	ErrNotRegistered = errors.New("driver: not registered")

	// ErrNoDriver is returned by OpenDefault when no driver is registered.
	ErrNoDriver = errors.New("driver: no driver available")

	// ErrOutOfDate means the swapchain no longer matches its surface and
	// must be recreated before it can be used again.
	ErrOutOfDate = errors.New("driver: swapchain out of date")

	// ErrSuboptimal means presentation succeeded but the swapchain no
	// longer matches the surface exactly.
	ErrSuboptimal = errors.New("driver: swapchain suboptimal")

	// ErrTimeout is returned when a wait exceeds its timeout.
	ErrTimeout = errors.New("driver: timeout")

	// ErrDeviceLost is returned once the device is unusable.
	ErrDeviceLost = errors.New("driver: device lost")

	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("driver: unsupported")
)
