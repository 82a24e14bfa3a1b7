package drivertest

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
)

type instance struct {
	obj
}

func (i *instance) CreateSurface(display, window uintptr) (driver.Surface, error) {
	s := &surface{display: display, window: window}
	i.drv.track(&s.obj, "surface")
	return s, nil
}

func (i *instance) Adapters(driver.Surface) ([]driver.Adapter, error) {
	i.drv.mu.Lock()
	defer i.drv.mu.Unlock()
	out := make([]driver.Adapter, len(i.drv.adapters))
	for n := range i.drv.adapters {
		out[n] = &adapter{drv: i.drv, index: n}
	}
	return out, nil
}

type surface struct {
	obj
	display, window uintptr
}

type adapter struct {
	drv   *Driver
	index int
}

func (a *adapter) cfg() AdapterConfig {
	a.drv.mu.Lock()
	defer a.drv.mu.Unlock()
	return a.drv.adapters[a.index]
}

func (a *adapter) Info() gputypes.AdapterInfo { return a.cfg().Info }

func (a *adapter) QueueFamilies(driver.Surface) []driver.QueueFamily {
	return append([]driver.QueueFamily(nil), a.cfg().Families...)
}

func (a *adapter) SupportsSwapchain() bool { return !a.cfg().NoSwapchain }

func (a *adapter) FormatFeatures(f gputypes.TextureFormat) driver.FormatFeatures {
	return a.cfg().Formats[f]
}

func (a *adapter) MemoryTypes() []driver.MemoryType {
	return append([]driver.MemoryType(nil), a.cfg().Memory...)
}

func (a *adapter) SurfaceSupport(driver.Surface) (driver.SurfaceSupport, error) {
	return a.cfg().Surface, nil
}

func (a *adapter) Open(families []int) (driver.Device, error) {
	cfg := a.cfg()
	dev := &device{cfg: cfg, queues: make(map[int]*queue)}
	a.drv.track(&dev.obj, "device")
	for _, f := range families {
		if f < 0 || f >= len(cfg.Families) {
			return nil, fmt.Errorf("drivertest: no queue family %d", f)
		}
		dev.queues[f] = &queue{dev: dev, family: f}
	}
	return dev, nil
}

type device struct {
	obj
	cfg    AdapterConfig
	queues map[int]*queue
}

func (d *device) Queue(family int) driver.Queue {
	q, ok := d.queues[family]
	if !ok {
		return nil
	}
	return q
}

func (d *device) allTypes() uint32 { return 1<<len(d.cfg.Memory) - 1 }

func (d *device) NewBuffer(size int64, usage gputypes.BufferUsage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("drivertest: buffer size must be positive")
	}
	b := &buffer{size: size, usage: usage, typeBits: d.allTypes()}
	d.drv.track(&b.obj, "buffer")
	return b, nil
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Extent.IsZero() {
		return nil, errors.New("drivertest: zero image extent")
	}
	bits := d.cfg.ImageTypeBits
	if bits == 0 {
		bits = d.allTypes()
	}
	img := &image{desc: desc, typeBits: bits}
	d.drv.track(&img.obj, "image")
	return img, nil
}

func (d *device) AllocateMemory(size int64, typeIndex int) (driver.Memory, error) {
	if typeIndex < 0 || typeIndex >= len(d.cfg.Memory) {
		return nil, fmt.Errorf("drivertest: no memory type %d", typeIndex)
	}
	m := &memory{data: make([]byte, size), props: d.cfg.Memory[typeIndex].Props, limit: d.cfg.MapLimit}
	d.drv.track(&m.obj, "memory")
	return m, nil
}

func (d *device) NewImageView(img driver.Image) (driver.ImageView, error) {
	if img == nil {
		return nil, errors.New("drivertest: nil image")
	}
	v := &view{img: img}
	d.drv.track(&v.obj, "image view")
	return v, nil
}

func (d *device) NewFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	if desc.Color == nil {
		return nil, errors.New("drivertest: framebuffer without color attachment")
	}
	fb := &framebuffer{desc: desc}
	d.drv.track(&fb.obj, "framebuffer")
	return fb, nil
}

func (d *device) NewBindingLayout(entries []gputypes.BindGroupLayoutEntry) (driver.BindingLayout, error) {
	l := &simple{}
	d.drv.track(&l.obj, "binding layout")
	return l, nil
}

func (d *device) NewBindingTable(layout driver.BindingLayout, entries []driver.BufferBinding) (driver.BindingTable, error) {
	for _, e := range entries {
		if e.Buffer == nil {
			return nil, fmt.Errorf("drivertest: binding %d has no buffer", e.Binding)
		}
	}
	t := &simple{}
	d.drv.track(&t.obj, "binding table")
	return t, nil
}

func (d *device) NewShaderModule(spirv []byte) (driver.ShaderModule, error) {
	if len(spirv) == 0 {
		return nil, errors.New("drivertest: empty shader code")
	}
	m := &simple{}
	d.drv.track(&m.obj, "shader module")
	return m, nil
}

func (d *device) NewPipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	if desc.Vertex.Module == nil || desc.Fragment.Module == nil {
		return nil, errors.New("drivertest: pipeline without shaders")
	}
	p := &simple{}
	d.drv.track(&p.obj, "pipeline")
	return p, nil
}

func (d *device) NewCmdBuffer() (driver.CmdBuffer, error) {
	cb := &cmdBuffer{}
	d.drv.track(&cb.obj, "command buffer")
	return cb, nil
}

func (d *device) NewSemaphore() (driver.Semaphore, error) {
	s := &semaphore{}
	d.drv.track(&s.obj, "semaphore")
	return s, nil
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	f := &fence{signaled: signaled}
	d.drv.track(&f.obj, "fence")
	return f, nil
}

func (d *device) Wait(f driver.Fence, _ time.Duration) error {
	fc := f.(*fence)
	d.drv.mu.Lock()
	defer d.drv.mu.Unlock()
	if fc.signaled {
		return nil
	}
	if !fc.pending {
		// Nothing will ever signal it.
		return driver.ErrTimeout
	}
	d.drv.completeLocked(fc)
	return nil
}

func (d *device) Reset(f driver.Fence) error {
	fc := f.(*fence)
	d.drv.mu.Lock()
	defer d.drv.mu.Unlock()
	if fc.pending {
		d.drv.violationLocked("reset of pending fence")
		return errors.New("drivertest: reset of pending fence")
	}
	fc.signaled = false
	return nil
}

func (d *device) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	if desc.Extent.IsZero() {
		return nil, errors.New("drivertest: zero swapchain extent")
	}
	if desc.ImageCount == 0 {
		return nil, errors.New("drivertest: zero swapchain images")
	}
	sc := &swapchain{desc: desc, next: -1}
	d.drv.track(&sc.obj, "swapchain")
	for i := uint32(0); i < desc.ImageCount; i++ {
		img := &image{desc: driver.ImageDesc{Format: desc.Format.Format, Extent: desc.Extent}, owned: true}
		img.drv = d.drv
		img.kind = "swapchain image"
		sc.images = append(sc.images, img)
	}
	d.drv.mu.Lock()
	d.drv.stats.Swapchains++
	d.drv.lastChain = desc
	d.drv.mu.Unlock()
	return sc, nil
}

func (d *device) WaitIdle() error {
	d.drv.mu.Lock()
	defer d.drv.mu.Unlock()
	d.drv.stats.WaitIdles++
	for len(d.drv.pending) > 0 {
		d.drv.completeLocked(d.drv.pending[0])
	}
	return nil
}

type memory struct {
	obj
	data   []byte
	props  driver.MemoryProps
	limit  int64
	mapped bool
}

func (m *memory) Map() ([]byte, error) {
	if !m.props.Contains(driver.MemoryHostVisible) {
		return nil, errors.New("drivertest: map of memory that is not host visible")
	}
	m.mapped = true
	if m.limit > 0 && m.limit < int64(len(m.data)) {
		return m.data[:m.limit], nil
	}
	return m.data, nil
}

func (m *memory) Unmap() { m.mapped = false }

type buffer struct {
	obj
	size     int64
	usage    gputypes.BufferUsage
	typeBits uint32
	mem      *memory
}

func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{Size: b.size, Align: 4, TypeBits: b.typeBits}
}

func (b *buffer) Bind(mem driver.Memory) error {
	m := mem.(*memory)
	if b.mem != nil {
		return errors.New("drivertest: buffer already bound")
	}
	if int64(len(m.data)) < b.size {
		return errors.New("drivertest: memory smaller than buffer")
	}
	b.mem = m
	return nil
}

type image struct {
	obj
	desc     driver.ImageDesc
	typeBits uint32
	mem      *memory
	owned    bool
}

func (i *image) Requirements() driver.MemoryRequirements {
	size := int64(i.desc.Extent.Width) * int64(i.desc.Extent.Height) * 4
	return driver.MemoryRequirements{Size: size, Align: 256, TypeBits: i.typeBits}
}

func (i *image) Bind(mem driver.Memory) error {
	if i.owned {
		return errors.New("drivertest: swapchain images cannot be bound")
	}
	i.mem = mem.(*memory)
	return nil
}

type view struct {
	obj
	img driver.Image
}

type framebuffer struct {
	obj
	desc driver.FramebufferDesc
}

// simple backs objects with no observable state.
type simple struct {
	obj
}

type semaphore struct {
	obj
	signaled bool
}

type fence struct {
	obj
	signaled bool
	pending  bool
	cmds     []*cmdBuffer
}

func (f *fence) Signaled() bool {
	f.drv.mu.Lock()
	defer f.drv.mu.Unlock()
	return f.signaled
}
