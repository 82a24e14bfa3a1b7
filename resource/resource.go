// Package resource creates memory-backed GPU buffers and images and
// uploads host data into device-local memory through a staging buffer.
package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/gputypes"
)

// Allocation errors.
var (
	// ErrZeroSize is returned for buffer requests of zero bytes.
	ErrZeroSize = errors.New("resource: zero-size buffer")

	// ErrNoMemoryType is returned when no memory type satisfies both the
	// resource's type mask and the requested properties.
	ErrNoMemoryType = errors.New("resource: no compatible memory type")

	// ErrEmptyPayload is returned when an upload has no data.
	ErrEmptyPayload = errors.New("resource: empty upload payload")

	// ErrSizeMismatch is returned when a mapping is shorter than its buffer,
	// so a staging buffer cannot hold the payload.
	ErrSizeMismatch = errors.New("resource: staging buffer size mismatch")
)

// DepthMemoryFallback lists the memory properties tried, in order, for
// depth images.
var DepthMemoryFallback = []driver.MemoryProps{
	driver.MemoryDeviceLocal,
	driver.MemoryHostVisible | driver.MemoryHostCoherent,
}

// Stats counts live allocations made through an Allocator.
type Stats struct {
	Buffers int
	Images  int
	// Bytes is the total size of live memory allocations.
	Bytes int64
	// Uploads is the number of staging uploads performed.
	Uploads int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Resources[%d buffers, %d images, %d KiB, %d uploads]",
		s.Buffers, s.Images, s.Bytes/1024, s.Uploads)
}

// Allocator creates resources on a device. It is not safe for concurrent
// use.
type Allocator struct {
	dev   *gpu.Device
	stats Stats
}

// New returns an allocator for dev.
func New(dev *gpu.Device) *Allocator {
	return &Allocator{dev: dev}
}

// Device returns the device resources are created on.
func (a *Allocator) Device() *gpu.Device { return a.dev }

// Stats returns the current allocation counters.
func (a *Allocator) Stats() Stats { return a.stats }

// FindMemoryType returns the first memory type index allowed by typeBits
// whose properties include props.
func FindMemoryType(types []driver.MemoryType, typeBits uint32, props driver.MemoryProps) (int, error) {
	for i, t := range types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) != 0 && t.Props.Contains(props) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: mask %#b, properties %s", ErrNoMemoryType, typeBits, props)
}

// Buffer is a driver buffer bound to its own memory allocation.
type Buffer struct {
	alloc *Allocator
	buf   driver.Buffer
	mem   driver.Memory
	size  int64
	usage gputypes.BufferUsage
	props driver.MemoryProps
	bytes int64
}

// CreateBuffer creates a buffer of size bytes backed by memory with at
// least the given properties.
func (a *Allocator) CreateBuffer(size int64, usage gputypes.BufferUsage, props driver.MemoryProps) (*Buffer, error) {
	if size <= 0 {
		return nil, ErrZeroSize
	}
	h := a.dev.Handle()
	buf, err := h.NewBuffer(size, usage)
	if err != nil {
		return nil, fmt.Errorf("resource: create buffer: %w", err)
	}
	req := buf.Requirements()
	idx, err := FindMemoryType(a.dev.MemoryTypes(), req.TypeBits, props)
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	mem, err := h.AllocateMemory(req.Size, idx)
	if err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("resource: allocate %d bytes: %w", req.Size, err)
	}
	if err := buf.Bind(mem); err != nil {
		buf.Destroy()
		mem.Destroy()
		return nil, fmt.Errorf("resource: bind buffer memory: %w", err)
	}

	a.stats.Buffers++
	a.stats.Bytes += req.Size
	slogger().Debug("resource: buffer created", "size", size, "memory_type", idx, "props", props.String())
	return &Buffer{alloc: a, buf: buf, mem: mem, size: size, usage: usage, props: props, bytes: req.Size}, nil
}

// Handle returns the driver buffer.
func (b *Buffer) Handle() driver.Buffer { return b.buf }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int64 { return b.size }

// Usage returns the usage the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Map maps the buffer memory, which must be host visible. The returned
// slice is exactly Size bytes.
func (b *Buffer) Map() ([]byte, error) {
	data, err := b.mem.Map()
	if err != nil {
		return nil, fmt.Errorf("resource: map buffer: %w", err)
	}
	if int64(len(data)) < b.size {
		b.mem.Unmap()
		return nil, fmt.Errorf("%w: mapped %d bytes, buffer is %d", ErrSizeMismatch, len(data), b.size)
	}
	return data[:b.size], nil
}

// Unmap unmaps the buffer memory.
func (b *Buffer) Unmap() { b.mem.Unmap() }

// Destroy releases the buffer, then its memory. The device must no longer
// use it. Destroy is a no-op on a nil or destroyed buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.buf == nil {
		return
	}
	b.buf.Destroy()
	b.mem.Destroy()
	b.buf, b.mem = nil, nil
	b.alloc.stats.Buffers--
	b.alloc.stats.Bytes -= b.bytes
}

// UploadViaStaging copies data into a new device-local buffer with usage
// plus CopyDst. It blocks until the copy has executed on the GPU.
func (a *Allocator) UploadViaStaging(data []byte, usage gputypes.BufferUsage) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	size := int64(len(data))
	staging, err := a.CreateBuffer(size, gputypes.BufferUsageCopySrc, driver.MemoryHostVisible|driver.MemoryHostCoherent)
	if err != nil {
		return nil, fmt.Errorf("resource: staging buffer: %w", err)
	}
	defer staging.Destroy()

	mapped, err := staging.Map()
	if err != nil {
		return nil, err
	}
	copy(mapped, data)
	staging.Unmap()

	dst, err := a.CreateBuffer(size, usage|gputypes.BufferUsageCopyDst, driver.MemoryDeviceLocal)
	if err != nil {
		return nil, fmt.Errorf("resource: destination buffer: %w", err)
	}

	cb, err := a.dev.BeginUpload()
	if err != nil {
		dst.Destroy()
		return nil, err
	}
	cb.CopyBuffer(staging.Handle(), dst.Handle(), driver.BufferCopy{Size: size})
	if err := a.dev.EndUpload(cb); err != nil {
		dst.Destroy()
		return nil, err
	}

	a.stats.Uploads++
	return dst, nil
}

// Image is a depth attachment: an image, its memory and a view.
type Image struct {
	alloc  *Allocator
	img    driver.Image
	mem    driver.Memory
	view   driver.ImageView
	format gputypes.TextureFormat
	extent driver.Extent
	props  driver.MemoryProps
	bytes  int64
}

// CreateDepthImage creates a depth attachment of the given format and
// extent. Memory is chosen by trying DepthMemoryFallback in order.
func (a *Allocator) CreateDepthImage(format gputypes.TextureFormat, extent driver.Extent) (*Image, error) {
	h := a.dev.Handle()
	img, err := h.NewImage(driver.ImageDesc{
		Format: format,
		Extent: extent,
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("resource: create depth image: %w", err)
	}
	req := img.Requirements()

	idx, props := -1, driver.MemoryProps(0)
	for i, p := range DepthMemoryFallback {
		n, err := FindMemoryType(a.dev.MemoryTypes(), req.TypeBits, p)
		if err != nil {
			continue
		}
		if i > 0 {
			slogger().Warn("resource: depth image memory fallback", "props", p.String())
		}
		idx, props = n, p
		break
	}
	if idx < 0 {
		img.Destroy()
		return nil, fmt.Errorf("%w for depth image (mask %#b)", ErrNoMemoryType, req.TypeBits)
	}

	mem, err := h.AllocateMemory(req.Size, idx)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("resource: allocate depth memory: %w", err)
	}
	if err := img.Bind(mem); err != nil {
		img.Destroy()
		mem.Destroy()
		return nil, fmt.Errorf("resource: bind depth memory: %w", err)
	}
	view, err := h.NewImageView(img)
	if err != nil {
		img.Destroy()
		mem.Destroy()
		return nil, fmt.Errorf("resource: depth view: %w", err)
	}

	a.stats.Images++
	a.stats.Bytes += req.Size
	slogger().Debug("resource: depth image created",
		"format", format.String(), "extent", extent.String(), "props", props.String())
	return &Image{alloc: a, img: img, mem: mem, view: view, format: format, extent: extent, props: props, bytes: req.Size}, nil
}

// Handle returns the driver image.
func (i *Image) Handle() driver.Image { return i.img }

// View returns the image view.
func (i *Image) View() driver.ImageView { return i.view }

// Format returns the image format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

// Extent returns the image size.
func (i *Image) Extent() driver.Extent { return i.extent }

// MemoryProps returns the properties of the memory backing the image.
func (i *Image) MemoryProps() driver.MemoryProps { return i.props }

// Destroy releases the view, the image and its memory. Destroy is a
// no-op on a destroyed image.
func (i *Image) Destroy() {
	if i.img == nil {
		return
	}
	i.view.Destroy()
	i.img.Destroy()
	i.mem.Destroy()
	i.view, i.img, i.mem = nil, nil, nil
	i.alloc.stats.Images--
	i.alloc.stats.Bytes -= i.bytes
}
