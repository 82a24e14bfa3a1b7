// Package haldrv implements the engine driver interface on top of
// gogpu/wgpu's hardware abstraction layer.
//
// The HAL is WebGPU-shaped while the driver interface is explicit about
// queues, memory and synchronization, so a few concepts are synthesized:
//
//   - every adapter exposes a single queue family; it supports presentation
//     when the HAL reports surface capabilities for the surface
//   - memory types are [device-local, host-visible|host-coherent]; buffers
//     bound to host-visible memory are created with MapWrite usage
//   - fences are submission indexes compared against Queue.PollCompleted
//   - semaphores are ordering tokens; the HAL binds swapchain
//     synchronization internally
//   - push constants are emulated with a dynamic-offset uniform buffer at
//     bind group len(PipelineDesc.Layouts)
//
// Importing the package registers a "hal" driver that opens the best
// native HAL backend (build with -tags nogpu to skip native backends).
package haldrv

import (
	"errors"
	"fmt"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Name is the registry name of the driver.
const Name = "hal"

// backendPriority is the order in which native HAL backends are tried.
var backendPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

// Driver is a driver.Driver backed by a HAL backend.
type Driver struct {
	backend hal.Backend
}

var _ driver.Driver = (*Driver)(nil)

// New wraps a HAL backend.
func New(b hal.Backend) *Driver {
	return &Driver{backend: b}
}

// NewDefault wraps the first registered native HAL backend.
func NewDefault() (*Driver, error) {
	for _, v := range backendPriority {
		if b, ok := hal.GetBackend(v); ok {
			return New(b), nil
		}
	}
	return nil, fmt.Errorf("haldrv: no native HAL backend registered (have %v)", hal.AvailableBackends())
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return Name }

// Open implements driver.Driver.
func (d *Driver) Open(desc driver.InstanceDesc) (driver.Instance, error) {
	var flags gputypes.InstanceFlags
	if desc.Validation {
		flags |= gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	inst, err := d.backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << d.backend.Variant(),
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create instance: %w", err)
	}
	slogger().Info("haldrv: instance created",
		"backend", d.backend.Variant().String(),
		"validation", desc.Validation)
	return &instance{hal: inst}, nil
}

// mapError translates HAL errors to driver errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("%w: %v", driver.ErrOutOfDate, err)
	case errors.Is(err, hal.ErrTimeout):
		return fmt.Errorf("%w: %v", driver.ErrTimeout, err)
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %v", driver.ErrDeviceLost, err)
	default:
		return err
	}
}
