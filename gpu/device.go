package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
)

// Device selection and capability errors.
var (
	// ErrNoSuitableAdapter is returned when no adapter can render to and
	// present on the context's surface.
	ErrNoSuitableAdapter = errors.New("gpu: no suitable adapter")

	// ErrNoDepthFormat is returned when none of the candidate depth
	// formats can be used as a depth-stencil attachment.
	ErrNoDepthFormat = errors.New("gpu: no supported depth format")

	// ErrContextDestroyed is returned when a destroyed context is used.
	ErrContextDestroyed = errors.New("gpu: context destroyed")
)

// DefaultDepthFormats is the candidate list used by PickDepthFormat when
// none is given.
var DefaultDepthFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatDepth32Float,
	gputypes.TextureFormatDepth32FloatStencil8,
	gputypes.TextureFormatDepth24PlusStencil8,
}

// DefaultFenceTimeout bounds every fence wait issued by the engine.
const DefaultFenceTimeout = 10 * time.Second

// DeviceOption configures NewDevice.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	fenceTimeout time.Duration
}

// WithFenceTimeout sets the bound on fence waits. A wait that exceeds it
// is reported as driver.ErrTimeout.
func WithFenceTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// Device is the logical device opened on the selected adapter.
type Device struct {
	ctx     *Context
	adapter driver.Adapter
	info    gputypes.AdapterInfo
	dev     driver.Device

	graphicsFamily int
	presentFamily  int
	graphics       driver.Queue
	present        driver.Queue

	memTypes     []driver.MemoryType
	fenceTimeout time.Duration

	// uploadFence guards one-shot submissions; it is unsignaled between
	// uploads.
	uploadFence driver.Fence
}

// NewDevice selects the first adapter that has a graphics queue family, a
// family able to present to the context's surface, presentation-chain
// support, and at least one surface format and present mode. It opens a
// logical device with those queues.
func NewDevice(ctx *Context, opts ...DeviceOption) (*Device, error) {
	if ctx.instance == nil {
		return nil, ErrContextDestroyed
	}
	o := deviceOptions{fenceTimeout: DefaultFenceTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	adapters, err := ctx.instance.Adapters(ctx.surface)
	if err != nil {
		return nil, fmt.Errorf("gpu: enumerate adapters: %w", err)
	}

	for _, a := range adapters {
		info := a.Info()
		gfx, pres, reason := checkAdapter(a, ctx.surface)
		if reason != "" {
			slogger().Debug("gpu: adapter rejected", "adapter", info.Name, "reason", reason)
			continue
		}

		families := []int{gfx}
		if pres != gfx {
			families = append(families, pres)
		}
		dev, err := a.Open(families)
		if err != nil {
			return nil, fmt.Errorf("gpu: open device on %q: %w", info.Name, err)
		}
		fence, err := dev.NewFence(false)
		if err != nil {
			dev.Destroy()
			return nil, fmt.Errorf("gpu: create upload fence: %w", err)
		}

		d := &Device{
			ctx:            ctx,
			adapter:        a,
			info:           info,
			dev:            dev,
			graphicsFamily: gfx,
			presentFamily:  pres,
			graphics:       dev.Queue(gfx),
			present:        dev.Queue(pres),
			memTypes:       a.MemoryTypes(),
			fenceTimeout:   o.fenceTimeout,
			uploadFence:    fence,
		}
		slogger().Info("gpu: adapter selected",
			"adapter", info.Name,
			"type", info.DeviceType.String(),
			"graphics_family", gfx,
			"present_family", pres)
		return d, nil
	}
	return nil, fmt.Errorf("%w (%d enumerated)", ErrNoSuitableAdapter, len(adapters))
}

// checkAdapter returns the graphics and present family indexes for a
// usable adapter, or a rejection reason. A family that does both is
// preferred for presentation.
func checkAdapter(a driver.Adapter, s driver.Surface) (gfx, pres int, reason string) {
	gfx, pres = -1, -1
	for _, f := range a.QueueFamilies(s) {
		if f.Graphics && gfx < 0 {
			gfx = f.Index
		}
		if f.Present && (pres < 0 || f.Graphics && pres != gfx) {
			pres = f.Index
		}
	}
	switch {
	case gfx < 0:
		return gfx, pres, "no graphics queue family"
	case pres < 0:
		return gfx, pres, "no queue family can present to the surface"
	case !a.SupportsSwapchain():
		return gfx, pres, "no presentation chain support"
	}
	sup, err := a.SurfaceSupport(s)
	switch {
	case err != nil:
		return gfx, pres, err.Error()
	case len(sup.Formats) == 0:
		return gfx, pres, "no surface formats"
	case len(sup.PresentModes) == 0:
		return gfx, pres, "no present modes"
	}
	return gfx, pres, ""
}

// Context returns the context the device was created from.
func (d *Device) Context() *Context { return d.ctx }

// Adapter returns the selected adapter.
func (d *Device) Adapter() driver.Adapter { return d.adapter }

// Info returns the selected adapter's description.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// Handle returns the driver device.
func (d *Device) Handle() driver.Device { return d.dev }

// GraphicsQueue returns the queue draw work is submitted to.
func (d *Device) GraphicsQueue() driver.Queue { return d.graphics }

// PresentQueue returns the queue presentation is requested on. It may be
// the graphics queue.
func (d *Device) PresentQueue() driver.Queue { return d.present }

// GraphicsFamily returns the graphics queue family index.
func (d *Device) GraphicsFamily() int { return d.graphicsFamily }

// PresentFamily returns the present queue family index.
func (d *Device) PresentFamily() int { return d.presentFamily }

// MemoryTypes returns the adapter's memory-type table.
func (d *Device) MemoryTypes() []driver.MemoryType { return d.memTypes }

// SurfaceSupport queries the current surface capabilities. Capabilities
// change with the window, so callers query again before every chain
// (re)creation.
func (d *Device) SurfaceSupport() (driver.SurfaceSupport, error) {
	sup, err := d.adapter.SurfaceSupport(d.ctx.surface)
	if err != nil {
		return sup, fmt.Errorf("gpu: query surface support: %w", err)
	}
	return sup, nil
}

// Surface returns the context's surface.
func (d *Device) Surface() driver.Surface { return d.ctx.surface }

// FenceTimeout returns the bound on fence waits.
func (d *Device) FenceTimeout() time.Duration { return d.fenceTimeout }

// PickDepthFormat returns the first candidate usable as a depth-stencil
// attachment. With no candidates DefaultDepthFormats is used.
func (d *Device) PickDepthFormat(candidates ...gputypes.TextureFormat) (gputypes.TextureFormat, error) {
	if len(candidates) == 0 {
		candidates = DefaultDepthFormats
	}
	for _, f := range candidates {
		if d.adapter.FormatFeatures(f).Has(driver.FeatureDepthStencilAttachment) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, ErrNoDepthFormat
}

// BeginUpload returns a command buffer in the recording state for a
// one-shot transfer. It must be finished with EndUpload.
func (d *Device) BeginUpload() (driver.CmdBuffer, error) {
	cb, err := d.dev.NewCmdBuffer()
	if err != nil {
		return nil, fmt.Errorf("gpu: upload command buffer: %w", err)
	}
	if err := cb.Begin(); err != nil {
		cb.Destroy()
		return nil, fmt.Errorf("gpu: begin upload: %w", err)
	}
	return cb, nil
}

// EndUpload submits cb to the graphics queue, blocks until the GPU has
// executed it and releases it.
func (d *Device) EndUpload(cb driver.CmdBuffer) error {
	if err := cb.End(); err != nil {
		cb.Destroy()
		return fmt.Errorf("gpu: end upload: %w", err)
	}
	err := d.graphics.Submit(driver.SubmitDesc{
		Cmds:  []driver.CmdBuffer{cb},
		Fence: d.uploadFence,
	})
	if err != nil {
		cb.Destroy()
		return fmt.Errorf("gpu: submit upload: %w", err)
	}
	if err := d.dev.Wait(d.uploadFence, d.fenceTimeout); err != nil {
		// The command buffer may still be in use; leak it.
		return fmt.Errorf("gpu: wait upload: %w", err)
	}
	cb.Destroy()
	if err := d.dev.Reset(d.uploadFence); err != nil {
		return fmt.Errorf("gpu: reset upload fence: %w", err)
	}
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	if err := d.dev.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: wait idle: %w", err)
	}
	return nil
}

// Destroy releases the logical device. Everything created from it must be
// destroyed first. Destroy is a no-op on a destroyed device.
func (d *Device) Destroy() {
	if d.dev == nil {
		return
	}
	d.uploadFence.Destroy()
	d.dev.Destroy()
	d.dev = nil
	d.graphics = nil
	d.present = nil
}
