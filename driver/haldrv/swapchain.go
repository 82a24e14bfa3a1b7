package haldrv

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// swapchain maps the HAL's configured surface onto a fixed set of image
// indexes. Surface textures returned by AcquireTexture are assigned to
// indexes by native handle the first time they are seen; textures without
// a native handle are assigned round-robin.
type swapchain struct {
	dev     *device
	surface *surface
	images  []*image

	slots    []slot
	byHandle map[uintptr]int
	next     int
	format   gputypes.TextureFormat
}

type slot struct {
	tex  hal.SurfaceTexture
	view hal.TextureView
}

func (d *device) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	s, ok := desc.Surface.(*surface)
	if !ok {
		return nil, errors.New("haldrv: foreign surface")
	}
	if desc.ImageCount == 0 {
		return nil, errors.New("haldrv: zero swapchain images")
	}
	err := s.hal.Configure(d.hal, &hal.SurfaceConfiguration{
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
		Format:      desc.Format.Format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: desc.PresentMode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		if errors.Is(err, hal.ErrZeroArea) {
			return nil, fmt.Errorf("%w: %v", driver.ErrOutOfDate, err)
		}
		return nil, fmt.Errorf("haldrv: configure surface: %w", mapError(err))
	}

	sc := &swapchain{
		dev:      d,
		surface:  s,
		slots:    make([]slot, desc.ImageCount),
		byHandle: make(map[uintptr]int),
		format:   desc.Format.Format,
	}
	for i := 0; i < int(desc.ImageCount); i++ {
		sc.images = append(sc.images, &image{
			dev:   d,
			desc:  driver.ImageDesc{Format: desc.Format.Format, Extent: desc.Extent},
			chain: sc,
			index: i,
		})
	}
	slogger().Debug("haldrv: surface configured",
		"extent", desc.Extent.String(),
		"format", desc.Format.Format.String(),
		"images", desc.ImageCount)
	return sc, nil
}

func (s *swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

// Acquire blocks inside the HAL; timeout is not forwarded.
func (s *swapchain) Acquire(_ driver.Semaphore, _ time.Duration) (int, bool, error) {
	acq, err := s.surface.hal.AcquireTexture(nil)
	if err != nil {
		return 0, false, mapError(err)
	}
	h := acq.Texture.NativeHandle()
	idx, ok := s.byHandle[h]
	if !ok || h == 0 {
		idx = s.next
		s.next = (s.next + 1) % len(s.slots)
		s.release(idx)
		if h != 0 {
			s.byHandle[h] = idx
		}
	}
	s.slots[idx].tex = acq.Texture
	return idx, acq.Suboptimal, nil
}

// release forgets the texture currently assigned to slot i.
func (s *swapchain) release(i int) {
	sl := &s.slots[i]
	if sl.view != nil {
		s.dev.hal.DestroyTextureView(sl.view)
	}
	if sl.tex != nil {
		delete(s.byHandle, sl.tex.NativeHandle())
	}
	*sl = slot{}
}

// viewFor returns a view of the texture acquired at index i.
func (s *swapchain) viewFor(i int) (hal.TextureView, error) {
	sl := &s.slots[i]
	if sl.tex == nil {
		return nil, fmt.Errorf("haldrv: swapchain image %d is not acquired", i)
	}
	if sl.view == nil {
		v, err := s.dev.hal.CreateTextureView(sl.tex, viewDesc(s.format))
		if err != nil {
			return nil, fmt.Errorf("haldrv: create swapchain view: %w", err)
		}
		sl.view = v
	}
	return sl.view, nil
}

func (s *swapchain) present(q *queue, i int) error {
	sl := &s.slots[i]
	if sl.tex == nil {
		return fmt.Errorf("haldrv: present of image %d that was not acquired", i)
	}
	return mapError(q.hal.Present(s.surface.hal, sl.tex, nil))
}

func (s *swapchain) Destroy() {
	for i := range s.slots {
		s.release(i)
	}
	s.surface.hal.Unconfigure(s.dev.hal)
}
