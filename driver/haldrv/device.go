package haldrv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// fencePollInterval is the sleep between completion polls in Wait.
const fencePollInterval = 100 * time.Microsecond

type device struct {
	hal     hal.Device
	adapter *adapter
	queue   *queue

	// pushLayouts caches the bind group layout emulating push constants,
	// keyed by visible stages.
	pushLayouts map[gputypes.ShaderStages]hal.BindGroupLayout
}

func (d *device) Destroy() {
	for _, l := range d.pushLayouts {
		d.hal.DestroyBindGroupLayout(l)
	}
	d.pushLayouts = nil
	d.hal.Destroy()
}

func (d *device) Queue(family int) driver.Queue {
	if family != 0 {
		return nil
	}
	return d.queue
}

func (d *device) WaitIdle() error {
	return mapError(d.hal.WaitIdle())
}

func align4(n int64) int64 { return (n + 3) &^ 3 }

// Memory

type memory struct {
	dev       *device
	typeIndex int
	size      int64
	buf       *buffer
}

func (d *device) AllocateMemory(size int64, typeIndex int) (driver.Memory, error) {
	if typeIndex < 0 || typeIndex >= len(memoryTypes) {
		return nil, fmt.Errorf("haldrv: no memory type %d", typeIndex)
	}
	return &memory{dev: d, typeIndex: typeIndex, size: size}, nil
}

func (m *memory) hostVisible() bool { return m.typeIndex == memHostVisible }

func (m *memory) Map() ([]byte, error) {
	if !m.hostVisible() {
		return nil, errors.New("haldrv: map of device-local memory")
	}
	if m.buf == nil || m.buf.hal == nil {
		return nil, errors.New("haldrv: map of memory with no buffer bound")
	}
	size := uint64(m.buf.size)
	mapping, err := m.dev.hal.MapBuffer(m.buf.hal, 0, size)
	if err != nil {
		return nil, fmt.Errorf("haldrv: map buffer: %w", err)
	}
	return unsafe.Slice((*byte)(mapping.Ptr), size), nil //nolint:gosec // mapping covers size bytes
}

func (m *memory) Unmap() {
	if m.buf == nil || m.buf.hal == nil {
		return
	}
	if err := m.dev.hal.UnmapBuffer(m.buf.hal); err != nil {
		slogger().Warn("haldrv: unmap buffer", "err", err)
	}
}

// Memory is owned by the HAL object it was bound to.
func (m *memory) Destroy() { m.buf = nil }

// Buffers

type buffer struct {
	dev   *device
	size  int64
	usage gputypes.BufferUsage
	hal   hal.Buffer
}

func (d *device) NewBuffer(size int64, usage gputypes.BufferUsage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("haldrv: buffer size must be positive")
	}
	return &buffer{dev: d, size: size, usage: usage}, nil
}

func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:     align4(b.size),
		Align:    4,
		TypeBits: 1<<memDeviceLocal | 1<<memHostVisible,
	}
}

func (b *buffer) Bind(mem driver.Memory) error {
	m, ok := mem.(*memory)
	if !ok {
		return errors.New("haldrv: foreign memory")
	}
	if b.hal != nil {
		return errors.New("haldrv: buffer already bound")
	}
	usage := b.usage
	if m.hostVisible() {
		usage |= gputypes.BufferUsageMapWrite
	}
	hb, err := b.dev.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "engine_buffer",
		Size:  uint64(align4(b.size)),
		Usage: usage,
	})
	if err != nil {
		return fmt.Errorf("haldrv: create buffer: %w", err)
	}
	b.hal = hb
	m.buf = b
	return nil
}

func (b *buffer) Destroy() {
	if b.hal != nil {
		b.dev.hal.DestroyBuffer(b.hal)
		b.hal = nil
	}
}

// Images

type image struct {
	dev  *device
	desc driver.ImageDesc
	hal  hal.Texture

	// chain is set for swapchain images, whose textures change per acquire.
	chain *swapchain
	index int
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Extent.IsZero() {
		return nil, errors.New("haldrv: zero image extent")
	}
	return &image{dev: d, desc: desc}, nil
}

func (i *image) Requirements() driver.MemoryRequirements {
	size := int64(i.desc.Extent.Width) * int64(i.desc.Extent.Height) * 4
	return driver.MemoryRequirements{Size: size, Align: 256, TypeBits: 1 << memDeviceLocal}
}

func (i *image) Bind(mem driver.Memory) error {
	if i.chain != nil {
		return errors.New("haldrv: swapchain images cannot be bound")
	}
	tex, err := i.dev.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         "engine_image",
		Size:          hal.Extent3D{Width: i.desc.Extent.Width, Height: i.desc.Extent.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        i.desc.Format,
		Usage:         i.desc.Usage,
	})
	if err != nil {
		return fmt.Errorf("haldrv: create texture: %w", err)
	}
	i.hal = tex
	return nil
}

func (i *image) Destroy() {
	if i.chain == nil && i.hal != nil {
		i.dev.hal.DestroyTexture(i.hal)
		i.hal = nil
	}
}

type view struct {
	dev *device
	hal hal.TextureView

	// chainImage is set for views of swapchain images; the HAL view is
	// resolved when a pass begins.
	chainImage *image
}

func (d *device) NewImageView(img driver.Image) (driver.ImageView, error) {
	im, ok := img.(*image)
	if !ok {
		return nil, errors.New("haldrv: foreign image")
	}
	if im.chain != nil {
		return &view{dev: d, chainImage: im}, nil
	}
	if im.hal == nil {
		return nil, errors.New("haldrv: view of unbound image")
	}
	hv, err := d.hal.CreateTextureView(im.hal, viewDesc(im.desc.Format))
	if err != nil {
		return nil, fmt.Errorf("haldrv: create texture view: %w", err)
	}
	return &view{dev: d, hal: hv}, nil
}

func viewDesc(f gputypes.TextureFormat) *hal.TextureViewDescriptor {
	aspect := gputypes.TextureAspectAll
	if f.HasDepth() && !f.HasStencil() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	return &hal.TextureViewDescriptor{
		Label:           "engine_view",
		Format:          f,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
}

// resolve returns the HAL view to render into.
func (v *view) resolve() (hal.TextureView, error) {
	if v.chainImage == nil {
		return v.hal, nil
	}
	return v.chainImage.chain.viewFor(v.chainImage.index)
}

func (v *view) Destroy() {
	if v.hal != nil {
		v.dev.hal.DestroyTextureView(v.hal)
		v.hal = nil
	}
}

type framebuffer struct {
	color  *view
	depth  *view
	extent driver.Extent
}

func (d *device) NewFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	c, ok := desc.Color.(*view)
	if !ok {
		return nil, errors.New("haldrv: framebuffer needs a color view")
	}
	fb := &framebuffer{color: c, extent: desc.Extent}
	if desc.Depth != nil {
		dv, ok := desc.Depth.(*view)
		if !ok {
			return nil, errors.New("haldrv: foreign depth view")
		}
		fb.depth = dv
	}
	return fb, nil
}

// Framebuffers reference views they do not own.
func (f *framebuffer) Destroy() {}

// Bindings

type bindingLayout struct {
	dev *device
	hal hal.BindGroupLayout
}

func (d *device) NewBindingLayout(entries []gputypes.BindGroupLayoutEntry) (driver.BindingLayout, error) {
	l, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "engine_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create bind group layout: %w", err)
	}
	return &bindingLayout{dev: d, hal: l}, nil
}

func (l *bindingLayout) Destroy() { l.dev.hal.DestroyBindGroupLayout(l.hal) }

type bindingTable struct {
	dev *device
	hal hal.BindGroup
}

func (d *device) NewBindingTable(layout driver.BindingLayout, entries []driver.BufferBinding) (driver.BindingTable, error) {
	l, ok := layout.(*bindingLayout)
	if !ok {
		return nil, errors.New("haldrv: foreign binding layout")
	}
	he := make([]gputypes.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		b, ok := e.Buffer.(*buffer)
		if !ok || b.hal == nil {
			return nil, fmt.Errorf("haldrv: binding %d: unbound buffer", e.Binding)
		}
		size := e.Size
		if size == 0 {
			size = b.size - e.Offset
		}
		he = append(he, gputypes.BindGroupEntry{
			Binding: e.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: b.hal.NativeHandle(),
				Offset: uint64(e.Offset),
				Size:   uint64(size),
			},
		})
	}
	g, err := d.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "engine_bindings",
		Layout:  l.hal,
		Entries: he,
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create bind group: %w", err)
	}
	return &bindingTable{dev: d, hal: g}, nil
}

func (t *bindingTable) Destroy() { t.dev.hal.DestroyBindGroup(t.hal) }

// Shaders and pipelines

type shaderModule struct {
	dev *device
	hal hal.ShaderModule
}

func (d *device) NewShaderModule(spirv []byte) (driver.ShaderModule, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("haldrv: SPIR-V size %d is not a positive multiple of 4", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	m, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "engine_shader",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create shader module: %w", err)
	}
	return &shaderModule{dev: d, hal: m}, nil
}

func (m *shaderModule) Destroy() { m.dev.hal.DestroyShaderModule(m.hal) }

type pipeline struct {
	dev    *device
	hal    hal.RenderPipeline
	layout hal.PipelineLayout

	// pushIndex is the bind group emulating push constants, or -1.
	pushIndex  int
	pushLayout hal.BindGroupLayout
}

// pushSlotSize is the stride of push-constant slots in the emulation ring;
// it matches the minimum uniform buffer offset alignment.
const pushSlotSize = 256

func (d *device) pushLayoutFor(stages gputypes.ShaderStages) (hal.BindGroupLayout, error) {
	if l, ok := d.pushLayouts[stages]; ok {
		return l, nil
	}
	l, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "engine_push_constants",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: stages,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   pushSlotSize,
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	if d.pushLayouts == nil {
		d.pushLayouts = make(map[gputypes.ShaderStages]hal.BindGroupLayout)
	}
	d.pushLayouts[stages] = l
	return l, nil
}

func (d *device) NewPipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	vs, ok1 := desc.Vertex.Module.(*shaderModule)
	fs, ok2 := desc.Fragment.Module.(*shaderModule)
	if !ok1 || !ok2 {
		return nil, errors.New("haldrv: pipeline needs vertex and fragment modules")
	}

	p := &pipeline{dev: d, pushIndex: -1}
	layouts := make([]hal.BindGroupLayout, 0, len(desc.Layouts)+1)
	for _, l := range desc.Layouts {
		bl, ok := l.(*bindingLayout)
		if !ok {
			return nil, errors.New("haldrv: foreign binding layout")
		}
		layouts = append(layouts, bl.hal)
	}
	if len(desc.PushRanges) > 0 {
		var stages gputypes.ShaderStages
		for _, r := range desc.PushRanges {
			if r.Size > pushSlotSize {
				return nil, fmt.Errorf("haldrv: push range of %d bytes exceeds %d", r.Size, pushSlotSize)
			}
			stages |= r.Stages
		}
		pl, err := d.pushLayoutFor(stages)
		if err != nil {
			return nil, fmt.Errorf("haldrv: create push constant layout: %w", err)
		}
		p.pushIndex = len(layouts)
		p.pushLayout = pl
		layouts = append(layouts, pl)
	}

	layout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "engine_pipeline_layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create pipeline layout: %w", err)
	}
	p.layout = layout

	rd := &hal.RenderPipelineDescriptor{
		Label:  "engine_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs.hal,
			EntryPoint: desc.Vertex.Entry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: desc.FrontFace,
			CullMode:  desc.CullMode,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     fs.hal,
			EntryPoint: desc.Fragment.Entry,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.ColorFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		keep := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
		rd.DepthStencil = &hal.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}
	rp, err := d.hal.CreateRenderPipeline(rd)
	if err != nil {
		d.hal.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("haldrv: create render pipeline: %w", err)
	}
	p.hal = rp
	return p, nil
}

func (p *pipeline) Destroy() {
	p.dev.hal.DestroyRenderPipeline(p.hal)
	p.dev.hal.DestroyPipelineLayout(p.layout)
}

// Synchronization

type semaphore struct{}

func (d *device) NewSemaphore() (driver.Semaphore, error) { return &semaphore{}, nil }

func (s *semaphore) Destroy() {}

type fence struct {
	queue     *queue
	value     uint64
	submitted bool
	signaled  bool
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	return &fence{queue: d.queue, signaled: signaled}, nil
}

func (f *fence) poll() bool {
	if !f.signaled && f.submitted && f.queue.hal.PollCompleted() >= f.value {
		f.signaled = true
	}
	return f.signaled
}

func (f *fence) Signaled() bool { return f.poll() }

func (f *fence) Destroy() {}

func (d *device) Wait(df driver.Fence, timeout time.Duration) error {
	f, ok := df.(*fence)
	if !ok {
		return errors.New("haldrv: foreign fence")
	}
	if f.poll() {
		return nil
	}
	if !f.submitted {
		return fmt.Errorf("%w: fence was never submitted", driver.ErrTimeout)
	}
	deadline := time.Now().Add(timeout)
	for !f.poll() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d after %v", driver.ErrTimeout, f.value, timeout)
		}
		time.Sleep(fencePollInterval)
	}
	return nil
}

func (d *device) Reset(df driver.Fence) error {
	f, ok := df.(*fence)
	if !ok {
		return errors.New("haldrv: foreign fence")
	}
	f.signaled = false
	f.submitted = false
	f.value = 0
	return nil
}
