package driver

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// QueueFamily describes a family of device queues.
type QueueFamily struct {
	Index    int
	Graphics bool
	Present  bool
}

// FormatFeatures are optimal-tiling capabilities of an image format.
type FormatFeatures uint32

const (
	FeatureSampled FormatFeatures = 1 << iota
	FeatureColorAttachment
	FeatureDepthStencilAttachment
	FeatureTransferSrc
	FeatureTransferDst
)

// Has reports whether all features in q are present.
func (f FormatFeatures) Has(q FormatFeatures) bool { return f&q == q }

// MemoryProps are memory property flags.
type MemoryProps uint32

const (
	MemoryDeviceLocal MemoryProps = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
	MemoryHostCached
)

// Contains reports whether p has every flag set in q.
func (p MemoryProps) Contains(q MemoryProps) bool { return p&q == q }

func (p MemoryProps) String() string {
	if p == 0 {
		return "none"
	}
	names := [...]string{"device-local", "host-visible", "host-coherent", "host-cached"}
	s := ""
	for i, n := range names {
		if p&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n
	}
	return s
}

// MemoryType is an entry of an adapter's memory-type table.
type MemoryType struct {
	Props MemoryProps
	Heap  int
}

// MemoryRequirements describe what a resource needs from its memory.
type MemoryRequirements struct {
	Size  int64
	Align int64

	// TypeBits has bit i set when memory type i can back the resource.
	TypeBits uint32
}

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent) IsZero() bool { return e.Width == 0 || e.Height == 0 }

func (e Extent) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

// UndefinedExtent is reported as the current extent when the surface size
// is determined by the swapchain rather than by the window system.
var UndefinedExtent = Extent{Width: ^uint32(0), Height: ^uint32(0)}

// ColorSpace is the color space a presentation engine interprets images in.
type ColorSpace int

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceExtendedSRGBLinear
	ColorSpaceDisplayP3
)

// SurfaceFormat is a format/color-space pair supported by a surface.
type SurfaceFormat struct {
	Format     gputypes.TextureFormat
	ColorSpace ColorSpace
}

// SurfaceCaps are swapchain limits of a surface.
type SurfaceCaps struct {
	MinImages uint32

	// MaxImages is zero when there is no upper limit.
	MaxImages uint32

	// Current is UndefinedExtent when the swapchain decides the size.
	Current   Extent
	MinExtent Extent
	MaxExtent Extent
}

// SurfaceSupport is everything an adapter reports about a surface.
type SurfaceSupport struct {
	Caps         SurfaceCaps
	Formats      []SurfaceFormat
	PresentModes []gputypes.PresentMode
}

// SharingMode controls queue-family ownership of chain images.
type SharingMode int

const (
	SharingExclusive SharingMode = iota
	SharingConcurrent
)

func (m SharingMode) String() string {
	if m == SharingConcurrent {
		return "concurrent"
	}
	return "exclusive"
}

// SwapchainDesc describes a presentation chain.
type SwapchainDesc struct {
	Surface     Surface
	Format      SurfaceFormat
	Extent      Extent
	ImageCount  uint32
	PresentMode gputypes.PresentMode
	Sharing     SharingMode

	// Families lists the queue families sharing the images when Sharing
	// is SharingConcurrent.
	Families []int
}

// ImageDesc describes a 2D image.
type ImageDesc struct {
	Format gputypes.TextureFormat
	Extent Extent
	Usage  gputypes.TextureUsage
}

// FramebufferDesc describes the attachments of a render pass.
type FramebufferDesc struct {
	Color  ImageView
	Depth  ImageView
	Extent Extent
}

// BufferBinding binds a buffer range to a binding slot.
type BufferBinding struct {
	Binding uint32
	Buffer  Buffer
	Offset  int64

	// Size of zero binds the remainder of the buffer.
	Size int64
}

// ShaderFunc selects an entry point of a shader module.
type ShaderFunc struct {
	Module ShaderModule
	Entry  string
}

// PushRange declares inline constants visible to a set of stages.
type PushRange struct {
	Stages gputypes.ShaderStages
	Size   uint32
}

// PipelineDesc describes a graphics pipeline.
type PipelineDesc struct {
	Vertex   ShaderFunc
	Fragment ShaderFunc

	VertexBuffers []gputypes.VertexBufferLayout
	Layouts       []BindingLayout
	PushRanges    []PushRange

	ColorFormat gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat

	Topology  gputypes.PrimitiveTopology
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace
}

// SubmitDesc describes a queue submission.
type SubmitDesc struct {
	Cmds   []CmdBuffer
	Wait   []Semaphore
	Signal []Semaphore
	Fence  Fence
}

// PresentDesc describes a presentation request.
type PresentDesc struct {
	Swapchain Swapchain
	Index     int
	Wait      []Semaphore
}

// BufferCopy is a buffer-to-buffer copy region.
type BufferCopy struct {
	SrcOffset int64
	DstOffset int64
	Size      int64
}

// PassDesc describes a render pass instance.
type PassDesc struct {
	Framebuffer Framebuffer
	ClearColor  gputypes.Color
	ClearDepth  float32
}

// Viewport is a dynamic viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}
