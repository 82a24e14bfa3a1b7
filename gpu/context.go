// Package gpu owns the graphics context and the logical device.
//
// A [Context] opens a driver instance and binds it to a window surface.
// A [Device] is created from a context: it selects the first adapter that
// can render and present to that surface, opens its queues and provides a
// blocking one-shot submission facility used for uploads.
//
// Teardown runs in reverse: destroy every object created from the device,
// then the device, then the context.
package gpu

import (
	"fmt"

	"github.com/gogpu/engine/driver"
)

// ContextConfig configures NewContext.
type ContextConfig struct {
	// AppName is passed to the driver instance.
	AppName string

	// Driver opens the instance. Nil selects driver.Default.
	Driver driver.Driver

	// Validation enables the driver's diagnostics layer.
	Validation bool

	// Display and Window are the native handles of the target window.
	Display uintptr
	Window  uintptr
}

// Context is a driver instance bound to a presentation surface.
type Context struct {
	drv        driver.Driver
	instance   driver.Instance
	surface    driver.Surface
	validation bool
}

// NewContext opens a driver instance and creates the window surface.
func NewContext(cfg ContextConfig) (*Context, error) {
	drv := cfg.Driver
	if drv == nil {
		var err error
		if drv, err = driver.Default(); err != nil {
			return nil, fmt.Errorf("gpu: %w", err)
		}
	}

	inst, err := drv.Open(driver.InstanceDesc{AppName: cfg.AppName, Validation: cfg.Validation})
	if err != nil {
		return nil, fmt.Errorf("gpu: open %s driver: %w", drv.Name(), err)
	}
	surface, err := inst.CreateSurface(cfg.Display, cfg.Window)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}

	slogger().Info("gpu: context created", "driver", drv.Name(), "validation", cfg.Validation)
	return &Context{drv: drv, instance: inst, surface: surface, validation: cfg.Validation}, nil
}

// Instance returns the driver instance.
func (c *Context) Instance() driver.Instance { return c.instance }

// Surface returns the presentation surface.
func (c *Context) Surface() driver.Surface { return c.surface }

// DriverName returns the name of the driver the context was opened with.
func (c *Context) DriverName() string { return c.drv.Name() }

// Validation reports whether the diagnostics layer is enabled.
func (c *Context) Validation() bool { return c.validation }

// Destroy releases the surface and the instance. The device must already
// be destroyed. Destroy is a no-op on a destroyed context.
func (c *Context) Destroy() {
	if c.instance == nil {
		return
	}
	c.surface.Destroy()
	c.instance.Destroy()
	c.surface = nil
	c.instance = nil
}
