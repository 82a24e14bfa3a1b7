package haldrv

import (
	"errors"
	"fmt"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Memory types synthesized for every adapter.
const (
	memDeviceLocal = 0
	memHostVisible = 1
)

var memoryTypes = []driver.MemoryType{
	memDeviceLocal: {Props: driver.MemoryDeviceLocal, Heap: 0},
	memHostVisible: {Props: driver.MemoryHostVisible | driver.MemoryHostCoherent, Heap: 1},
}

// minSurfaceImages is reported as the minimum chain length. The HAL sizes
// its own swapchain; engine-side per-image state follows the reported
// count.
const minSurfaceImages = 2

type instance struct {
	hal hal.Instance
}

func (i *instance) Destroy() { i.hal.Destroy() }

func (i *instance) CreateSurface(display, window uintptr) (driver.Surface, error) {
	s, err := i.hal.CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("haldrv: create surface: %w", err)
	}
	return &surface{hal: s}, nil
}

func (i *instance) Adapters(hint driver.Surface) ([]driver.Adapter, error) {
	var hs hal.Surface
	if s, ok := hint.(*surface); ok {
		hs = s.hal
	}
	exposed := i.hal.EnumerateAdapters(hs)
	if len(exposed) == 0 {
		return nil, nil
	}
	out := make([]driver.Adapter, len(exposed))
	for n := range exposed {
		out[n] = &adapter{exposed: exposed[n]}
	}
	return out, nil
}

type surface struct {
	hal hal.Surface
}

func (s *surface) Destroy() { s.hal.Destroy() }

type adapter struct {
	exposed hal.ExposedAdapter
}

func (a *adapter) Info() gputypes.AdapterInfo { return a.exposed.Info }

func (a *adapter) QueueFamilies(s driver.Surface) []driver.QueueFamily {
	present := false
	if hs, ok := s.(*surface); ok {
		present = a.exposed.Adapter.SurfaceCapabilities(hs.hal) != nil
	}
	return []driver.QueueFamily{{Index: 0, Graphics: true, Present: present}}
}

func (a *adapter) SupportsSwapchain() bool { return true }

func (a *adapter) FormatFeatures(f gputypes.TextureFormat) driver.FormatFeatures {
	flags := a.exposed.Adapter.TextureFormatCapabilities(f).Flags
	var out driver.FormatFeatures
	if flags&hal.TextureFormatCapabilitySampled != 0 {
		out |= driver.FeatureSampled | driver.FeatureTransferSrc | driver.FeatureTransferDst
	}
	if flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
		if f.IsDepthStencil() {
			out |= driver.FeatureDepthStencilAttachment
		} else {
			out |= driver.FeatureColorAttachment
		}
	}
	return out
}

func (a *adapter) MemoryTypes() []driver.MemoryType {
	return append([]driver.MemoryType(nil), memoryTypes...)
}

func (a *adapter) SurfaceSupport(s driver.Surface) (driver.SurfaceSupport, error) {
	hs, ok := s.(*surface)
	if !ok {
		return driver.SurfaceSupport{}, errors.New("haldrv: foreign surface")
	}
	caps := a.exposed.Adapter.SurfaceCapabilities(hs.hal)
	if caps == nil {
		return driver.SurfaceSupport{}, fmt.Errorf("haldrv: adapter %q cannot present to surface", a.exposed.Info.Name)
	}

	maxDim := a.exposed.Capabilities.Limits.MaxTextureDimension2D
	if maxDim == 0 {
		maxDim = gputypes.DefaultLimits().MaxTextureDimension2D
	}
	sup := driver.SurfaceSupport{
		Caps: driver.SurfaceCaps{
			MinImages: minSurfaceImages,
			MaxImages: 0,
			Current:   driver.UndefinedExtent,
			MinExtent: driver.Extent{Width: 1, Height: 1},
			MaxExtent: driver.Extent{Width: maxDim, Height: maxDim},
		},
		PresentModes: append([]gputypes.PresentMode(nil), caps.PresentModes...),
	}
	for _, f := range caps.Formats {
		sup.Formats = append(sup.Formats, driver.SurfaceFormat{Format: f, ColorSpace: driver.ColorSpaceSRGBNonlinear})
	}
	return sup, nil
}

func (a *adapter) Open(families []int) (driver.Device, error) {
	for _, f := range families {
		if f != 0 {
			return nil, fmt.Errorf("haldrv: no queue family %d", f)
		}
	}
	od, err := a.exposed.Adapter.Open(0, a.exposed.Capabilities.Limits)
	if err != nil {
		return nil, fmt.Errorf("haldrv: open device: %w", err)
	}
	d := &device{hal: od.Device, adapter: a}
	d.queue = &queue{dev: d, hal: od.Queue}
	return d, nil
}
