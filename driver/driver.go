// Package driver defines the backend interface the engine core is written
// against.
//
// The interface is deliberately explicit: queue families, memory types,
// semaphores, fences and swapchain image indexes are all visible, so the
// components above it (gpu, swapchain, frame, resource, render) can express
// ownership and synchronization rules directly. Vocabulary types (formats,
// usages, present modes, vertex layouts) come from gputypes.
//
// Backends register themselves with [Register] and are opened by name with
// [Open]. Two backends ship with the module:
//
//   - driver/haldrv: real GPUs through gogpu/wgpu's HAL
//   - driver/drivertest: an instrumented in-memory backend for tests
package driver

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Destroyer is the interface that wraps the Destroy method.
//
// Destroy releases the object. It must only be called once the GPU no
// longer uses the object.
type Destroyer interface {
	Destroy()
}

// Driver is a backend entry point.
type Driver interface {
	// Name returns the name the driver was registered with.
	Name() string

	// Open creates an API instance.
	Open(desc InstanceDesc) (Instance, error)
}

// InstanceDesc describes an API instance.
type InstanceDesc struct {
	// AppName is reported to the backend where supported.
	AppName string

	// Validation enables the backend's diagnostics/validation layer.
	Validation bool
}

// Instance is an open API instance.
type Instance interface {
	Destroyer

	// CreateSurface binds a presentation surface to a native window.
	CreateSurface(display, window uintptr) (Surface, error)

	// Adapters enumerates the physical adapters. The surface is used as a
	// hint by backends whose enumeration depends on it; it may be nil.
	Adapters(hint Surface) ([]Adapter, error)
}

// Surface is a presentation target bound to a window.
type Surface interface {
	Destroyer
}

// Adapter is a physical GPU.
type Adapter interface {
	// Info returns identifying information.
	Info() gputypes.AdapterInfo

	// QueueFamilies reports the queue families and whether each can
	// present to s.
	QueueFamilies(s Surface) []QueueFamily

	// SupportsSwapchain reports whether the adapter can create
	// presentation chains at all.
	SupportsSwapchain() bool

	// FormatFeatures reports the optimal-tiling features of a format.
	FormatFeatures(f gputypes.TextureFormat) FormatFeatures

	// MemoryTypes returns the adapter's memory-type table.
	MemoryTypes() []MemoryType

	// SurfaceSupport reports chain capabilities for s.
	SurfaceSupport(s Surface) (SurfaceSupport, error)

	// Open creates a logical device with one queue per listed family.
	Open(families []int) (Device, error)
}

// Device is a logical device.
type Device interface {
	Destroyer

	// Queue returns the queue created for family.
	Queue(family int) Queue

	NewBuffer(size int64, usage gputypes.BufferUsage) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	AllocateMemory(size int64, typeIndex int) (Memory, error)
	NewImageView(img Image) (ImageView, error)
	NewFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	NewBindingLayout(entries []gputypes.BindGroupLayoutEntry) (BindingLayout, error)
	NewBindingTable(layout BindingLayout, entries []BufferBinding) (BindingTable, error)
	NewShaderModule(spirv []byte) (ShaderModule, error)
	NewPipeline(desc PipelineDesc) (Pipeline, error)
	NewCmdBuffer() (CmdBuffer, error)
	NewSemaphore() (Semaphore, error)

	// NewFence creates a fence, optionally in the signaled state.
	NewFence(signaled bool) (Fence, error)

	// Wait blocks until f signals or timeout elapses. It returns
	// ErrTimeout in the latter case.
	Wait(f Fence, timeout time.Duration) error

	// Reset returns f to the unsignaled state.
	Reset(f Fence) error

	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	// WaitIdle blocks until all queues are idle.
	WaitIdle() error
}

// Queue is a device queue.
type Queue interface {
	// Family returns the family index the queue belongs to.
	Family() int

	// Submit submits command buffers. Fence, if not nil, signals when
	// all of them complete.
	Submit(desc SubmitDesc) error

	// Present queues a chain image for presentation. It returns
	// ErrOutOfDate or ErrSuboptimal when the chain no longer matches the
	// surface.
	Present(desc PresentDesc) error
}

// Memory is a device memory allocation.
type Memory interface {
	Destroyer

	// Map maps the allocation into host address space. Only valid for
	// host-visible memory.
	Map() ([]byte, error)

	Unmap()
}

// Buffer is a linear GPU resource.
type Buffer interface {
	Destroyer

	Size() int64
	Requirements() MemoryRequirements

	// Bind attaches memory to the buffer. It must be called exactly once
	// before the buffer is used.
	Bind(mem Memory) error
}

// Image is a 2D GPU image.
type Image interface {
	Destroyer

	Requirements() MemoryRequirements
	Bind(mem Memory) error
}

// ImageView is a view of an Image.
type ImageView interface {
	Destroyer
}

// Framebuffer groups the attachments of a render pass.
type Framebuffer interface {
	Destroyer
}

// BindingLayout describes the bindings of a BindingTable.
type BindingLayout interface {
	Destroyer
}

// BindingTable is a set of resource bindings (a descriptor set).
type BindingTable interface {
	Destroyer
}

// ShaderModule is compiled shader code.
type ShaderModule interface {
	Destroyer
}

// Pipeline is a graphics pipeline.
type Pipeline interface {
	Destroyer
}

// Semaphore orders GPU operations. It cannot be observed by the host.
type Semaphore interface {
	Destroyer
}

// Fence is a host-waitable completion signal.
type Fence interface {
	Destroyer

	// Signaled reports whether the fence is signaled without blocking.
	Signaled() bool
}

// Swapchain is a presentation chain.
type Swapchain interface {
	Destroyer

	// Images returns the chain images in index order.
	Images() []Image

	// Acquire returns the index of the next image. signal is signaled
	// once the image can be written. suboptimal reports that the chain
	// still works but no longer matches the surface exactly. A stale
	// chain returns ErrOutOfDate.
	Acquire(signal Semaphore, timeout time.Duration) (index int, suboptimal bool, err error)
}

// CmdBuffer records GPU commands.
type CmdBuffer interface {
	Destroyer

	// Begin starts recording. The buffer must be in the initial state.
	Begin() error

	// End finishes recording.
	End() error

	// Reset returns the buffer to the initial state. The buffer must not
	// be pending execution.
	Reset() error

	CopyBuffer(src, dst Buffer, regions ...BufferCopy)

	BeginPass(desc PassDesc)
	EndPass()

	SetPipeline(p Pipeline)
	SetBindingTable(index int, t BindingTable)

	// PushConstants sets inline constant data for the given stages.
	PushConstants(stages gputypes.ShaderStages, offset uint32, data []byte)

	SetViewport(vp Viewport)
	SetScissor(x, y int32, width, height uint32)
	SetVertexBuffer(slot int, buf Buffer, offset int64)
	SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset int64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}
