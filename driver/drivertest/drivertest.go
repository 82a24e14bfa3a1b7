// Package drivertest provides an in-memory driver for tests.
//
// The driver keeps real byte slices behind every buffer and executes
// copies at submission time, so upload paths can be checked byte for byte.
// It also validates the synchronization protocol it is driven with:
// resetting a fence or command buffer that is still pending, waiting on a
// semaphore nobody signaled, or destroying an object twice are recorded
// as protocol violations (see [Stats]).
//
// GPU work completes lazily: a submission stays pending until its fence is
// waited on or the device is driven idle. That makes the number of
// outstanding frames observable.
package drivertest

import (
	"fmt"
	"sync"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
)

// Name is the name returned by Driver.Name.
const Name = "test"

// AdapterConfig describes a fake adapter.
type AdapterConfig struct {
	Info     gputypes.AdapterInfo
	Families []driver.QueueFamily

	// NoSwapchain makes the adapter report no presentation-chain support.
	NoSwapchain bool

	Memory  []driver.MemoryType
	Formats map[gputypes.TextureFormat]driver.FormatFeatures
	Surface driver.SurfaceSupport

	// ImageTypeBits restricts the memory types images may use.
	// Zero allows all types.
	ImageTypeBits uint32

	// MapLimit caps the length of the slice returned by mapping memory.
	// Zero maps the whole allocation.
	MapLimit int64
}

// DefaultAdapter returns a single-queue adapter that can present, with a
// device-local and a host-visible memory type.
func DefaultAdapter() AdapterConfig {
	return AdapterConfig{
		Info: gputypes.AdapterInfo{
			Name:       "Test Adapter",
			Vendor:     "GoGPU",
			DeviceType: gputypes.DeviceTypeOther,
			Backend:    gputypes.BackendEmpty,
		},
		Families: []driver.QueueFamily{{Index: 0, Graphics: true, Present: true}},
		Memory: []driver.MemoryType{
			{Props: driver.MemoryDeviceLocal, Heap: 0},
			{Props: driver.MemoryHostVisible | driver.MemoryHostCoherent, Heap: 1},
		},
		Formats: map[gputypes.TextureFormat]driver.FormatFeatures{
			gputypes.TextureFormatDepth32Float:        driver.FeatureDepthStencilAttachment,
			gputypes.TextureFormatDepth24PlusStencil8: driver.FeatureDepthStencilAttachment,
			gputypes.TextureFormatBGRA8UnormSrgb:      driver.FeatureColorAttachment | driver.FeatureSampled,
			gputypes.TextureFormatBGRA8Unorm:          driver.FeatureColorAttachment | driver.FeatureSampled,
		},
		Surface: driver.SurfaceSupport{
			Caps: driver.SurfaceCaps{
				MinImages: 2,
				MaxImages: 3,
				Current:   driver.UndefinedExtent,
				MinExtent: driver.Extent{Width: 1, Height: 1},
				MaxExtent: driver.Extent{Width: 4096, Height: 4096},
			},
			Formats: []driver.SurfaceFormat{
				{Format: gputypes.TextureFormatBGRA8UnormSrgb, ColorSpace: driver.ColorSpaceSRGBNonlinear},
				{Format: gputypes.TextureFormatBGRA8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
			},
			PresentModes: []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeMailbox},
		},
	}
}

// Stats are counters accumulated by a Driver.
type Stats struct {
	Submissions   int
	Presentations int
	Acquisitions  int
	Draws         int
	WaitIdles     int
	Swapchains    int

	// Pending is the number of submitted fences that have not completed.
	Pending int
	// MaxPending is the largest value Pending ever reached.
	MaxPending int

	// Live is the number of created objects not yet destroyed.
	Live int

	// Violations lists synchronization and lifetime protocol errors.
	Violations []string
}

// AcquireResult scripts the outcome of one Swapchain.Acquire call.
type AcquireResult struct {
	Suboptimal bool
	Err        error
}

// Driver is an in-memory driver.Driver.
type Driver struct {
	mu       sync.Mutex
	adapters []AdapterConfig
	stats    Stats

	validation bool
	acquire    []AcquireResult
	present    []error
	lastChain  driver.SwapchainDesc
	pending    []*fence
}

var _ driver.Driver = (*Driver)(nil)

// New creates a driver exposing the given adapters, or DefaultAdapter when
// none are given.
func New(adapters ...AdapterConfig) *Driver {
	if len(adapters) == 0 {
		adapters = []AdapterConfig{DefaultAdapter()}
	}
	return &Driver{adapters: adapters}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return Name }

// Open implements driver.Driver.
func (d *Driver) Open(desc driver.InstanceDesc) (driver.Instance, error) {
	d.mu.Lock()
	d.validation = desc.Validation
	d.mu.Unlock()
	inst := &instance{}
	d.track(&inst.obj, "instance")
	return inst, nil
}

// Stats returns a snapshot of the counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Violations = append([]string(nil), d.stats.Violations...)
	return s
}

// Validation reports whether the last instance was opened with validation.
func (d *Driver) Validation() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validation
}

// ScriptAcquire queues results for upcoming Acquire calls. Calls beyond
// the script succeed.
func (d *Driver) ScriptAcquire(results ...AcquireResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquire = append(d.acquire, results...)
}

// ScriptPresent queues results for upcoming Present calls. Calls beyond
// the script succeed.
func (d *Driver) ScriptPresent(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.present = append(d.present, errs...)
}

// SetSurfaceCaps replaces the surface capabilities of adapter i.
func (d *Driver) SetSurfaceCaps(i int, caps driver.SurfaceCaps) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[i].Surface.Caps = caps
}

// LastSwapchain returns the descriptor of the most recent swapchain.
func (d *Driver) LastSwapchain() driver.SwapchainDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastChain
}

// Contents returns a copy of the memory bound to b.
func Contents(b driver.Buffer) []byte {
	buf, ok := b.(*buffer)
	if !ok || buf.mem == nil {
		return nil
	}
	buf.drv.mu.Lock()
	defer buf.drv.mu.Unlock()
	return append([]byte(nil), buf.mem.data[:buf.size]...)
}

// obj is embedded by every tracked object.
type obj struct {
	drv       *Driver
	kind      string
	destroyed bool
}

func (d *Driver) track(o *obj, kind string) {
	o.drv = d
	o.kind = kind
	d.mu.Lock()
	d.stats.Live++
	d.mu.Unlock()
}

func (o *obj) Destroy() {
	o.drv.mu.Lock()
	defer o.drv.mu.Unlock()
	if o.destroyed {
		o.drv.violationLocked("double destroy of %s", o.kind)
		return
	}
	o.destroyed = true
	o.drv.stats.Live--
}

func (d *Driver) violationLocked(format string, args ...any) {
	d.stats.Violations = append(d.stats.Violations, fmt.Sprintf(format, args...))
}

// completeLocked marks a pending fence and its command buffers complete.
func (d *Driver) completeLocked(f *fence) {
	if !f.pending {
		return
	}
	f.pending = false
	f.signaled = true
	for _, cb := range f.cmds {
		cb.pending = false
	}
	f.cmds = nil
	d.stats.Pending--
	for i, p := range d.pending {
		if p == f {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
}
