// Package swapchain negotiates and owns the presentation chain: the
// images a surface rotates through for display, and a view of each.
package swapchain

import (
	"errors"
	"fmt"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/gputypes"
)

// ErrZeroExtent is returned when the resolved chain extent has zero area,
// typically because the window is minimized.
var ErrZeroExtent = errors.New("swapchain: zero extent")

// PreferredFormat is chosen when the surface offers it.
var PreferredFormat = driver.SurfaceFormat{
	Format:     gputypes.TextureFormatBGRA8UnormSrgb,
	ColorSpace: driver.ColorSpaceSRGBNonlinear,
}

// Chain is a presentation chain and its image views.
type Chain struct {
	dev *gpu.Device

	handle      driver.Swapchain
	format      driver.SurfaceFormat
	presentMode gputypes.PresentMode
	extent      driver.Extent
	sharing     driver.SharingMode
	images      []driver.Image
	views       []driver.ImageView
}

// New creates a chain for the device's surface. want is the framebuffer
// size, used when the surface does not pin its extent.
func New(dev *gpu.Device, want driver.Extent) (*Chain, error) {
	c := &Chain{dev: dev}
	if err := c.create(want); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) create(want driver.Extent) error {
	sup, err := c.dev.SurfaceSupport()
	if err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}
	extent := ChooseExtent(sup.Caps, want)
	if extent.IsZero() {
		return ErrZeroExtent
	}
	if len(sup.Formats) == 0 {
		return errors.New("swapchain: surface reports no formats")
	}

	desc := driver.SwapchainDesc{
		Surface:     c.dev.Surface(),
		Format:      ChooseFormat(sup.Formats),
		Extent:      extent,
		ImageCount:  ChooseImageCount(sup.Caps),
		PresentMode: ChoosePresentMode(sup.PresentModes),
		Sharing:     driver.SharingExclusive,
	}
	if g, p := c.dev.GraphicsFamily(), c.dev.PresentFamily(); g != p {
		desc.Sharing = driver.SharingConcurrent
		desc.Families = []int{g, p}
	}

	h := c.dev.Handle()
	sc, err := h.NewSwapchain(desc)
	if err != nil {
		return fmt.Errorf("swapchain: create: %w", err)
	}
	images := sc.Images()
	views := make([]driver.ImageView, 0, len(images))
	for i, img := range images {
		v, err := h.NewImageView(img)
		if err != nil {
			for _, v := range views {
				v.Destroy()
			}
			sc.Destroy()
			return fmt.Errorf("swapchain: view of image %d: %w", i, err)
		}
		views = append(views, v)
	}

	c.handle = sc
	c.format = desc.Format
	c.presentMode = desc.PresentMode
	c.extent = extent
	c.sharing = desc.Sharing
	c.images = images
	c.views = views

	slogger().Info("swapchain: created",
		"extent", extent.String(),
		"format", desc.Format.Format.String(),
		"present_mode", desc.PresentMode.String(),
		"images", len(images),
		"sharing", desc.Sharing.String())
	return nil
}

// Recreate replaces the chain with one sized for want. The device must be
// idle. On ErrZeroExtent the current chain is left untouched.
func (c *Chain) Recreate(want driver.Extent) error {
	sup, err := c.dev.SurfaceSupport()
	if err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}
	if ChooseExtent(sup.Caps, want).IsZero() {
		return ErrZeroExtent
	}
	c.Destroy()
	return c.create(want)
}

// Destroy releases the views, then the chain. It is safe to call again.
func (c *Chain) Destroy() {
	for _, v := range c.views {
		v.Destroy()
	}
	c.views = nil
	c.images = nil
	if c.handle != nil {
		c.handle.Destroy()
		c.handle = nil
	}
}

// Handle returns the driver swapchain, or nil after Destroy.
func (c *Chain) Handle() driver.Swapchain { return c.handle }

// Format returns the negotiated surface format.
func (c *Chain) Format() driver.SurfaceFormat { return c.format }

// PresentMode returns the negotiated present mode.
func (c *Chain) PresentMode() gputypes.PresentMode { return c.presentMode }

// Extent returns the size of the chain images.
func (c *Chain) Extent() driver.Extent { return c.extent }

// Sharing returns the queue-family sharing mode of the images.
func (c *Chain) Sharing() driver.SharingMode { return c.sharing }

// ImageCount returns the number of images in the chain.
func (c *Chain) ImageCount() int { return len(c.images) }

// Images returns the chain images, in index order.
func (c *Chain) Images() []driver.Image { return c.images }

// Views returns one view per chain image, in index order.
func (c *Chain) Views() []driver.ImageView { return c.views }

// ChooseFormat returns PreferredFormat when offered, else the first format.
func ChooseFormat(formats []driver.SurfaceFormat) driver.SurfaceFormat {
	for _, f := range formats {
		if f == PreferredFormat {
			return f
		}
	}
	if len(formats) == 0 {
		return driver.SurfaceFormat{}
	}
	return formats[0]
}

// ChoosePresentMode returns mailbox when offered, else FIFO, which every
// surface supports.
func ChoosePresentMode(modes []gputypes.PresentMode) gputypes.PresentMode {
	for _, m := range modes {
		if m == gputypes.PresentModeMailbox {
			return m
		}
	}
	return gputypes.PresentModeFifo
}

// ChooseImageCount returns one more than the minimum, clamped to the
// maximum. A maximum of zero means unbounded.
func ChooseImageCount(caps driver.SurfaceCaps) uint32 {
	n := caps.MinImages + 1
	if caps.MaxImages > 0 && n > caps.MaxImages {
		n = caps.MaxImages
	}
	return n
}

// ChooseExtent returns the surface's current extent when it is pinned,
// otherwise want clamped into the supported range.
func ChooseExtent(caps driver.SurfaceCaps, want driver.Extent) driver.Extent {
	if caps.Current != driver.UndefinedExtent {
		return caps.Current
	}
	if want.IsZero() {
		return driver.Extent{}
	}
	return driver.Extent{
		Width:  clamp(want.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(want.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}
