// Package frame implements the CPU/GPU handshake for overlapping frames.
//
// A Synchronizer owns, for each of F frame slots, an image-available
// semaphore and an in-flight fence, and for each of N chain images a
// render-finished semaphore and the fence of the frame that last used the
// image. The protocol for one frame is:
//
//	WaitSlot        wait for the slot's previous frame
//	(acquire image i, signaling ImageAvailable)
//	WaitImage(i)    wait for the frame still using image i, if any
//	Claim(i)        reset the slot fence and record it as owner of i
//	(submit, waiting ImageAvailable, signaling RenderFinished(i) and InFlight)
//	Advance
//
// With it at most F frames are outstanding and an image is never reused
// while a frame from another slot still renders to it.
package frame

import (
	"fmt"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/gpu"
)

// Synchronizer holds the per-slot and per-image synchronization objects.
type Synchronizer struct {
	dev *gpu.Device

	imageAvailable []driver.Semaphore
	inFlight       []driver.Fence

	renderFinished []driver.Semaphore
	// owners[i] is the in-flight fence of the last frame that used image
	// i, or nil.
	owners []driver.Fence

	slot int
}

// New creates the objects for imageCount chain images and framesInFlight
// slots. Slot fences start signaled so the first frame of every slot does
// not wait.
func New(dev *gpu.Device, imageCount, framesInFlight int) (*Synchronizer, error) {
	if imageCount <= 0 || framesInFlight <= 0 {
		return nil, fmt.Errorf("frame: invalid counts: %d images, %d frames in flight", imageCount, framesInFlight)
	}
	h := dev.Handle()
	s := &Synchronizer{dev: dev, owners: make([]driver.Fence, imageCount)}
	for range framesInFlight {
		sem, err := h.NewSemaphore()
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("frame: image-available semaphore: %w", err)
		}
		s.imageAvailable = append(s.imageAvailable, sem)
		f, err := h.NewFence(true)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("frame: in-flight fence: %w", err)
		}
		s.inFlight = append(s.inFlight, f)
	}
	for range imageCount {
		sem, err := h.NewSemaphore()
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("frame: render-finished semaphore: %w", err)
		}
		s.renderFinished = append(s.renderFinished, sem)
	}
	return s, nil
}

// Slot returns the current frame slot.
func (s *Synchronizer) Slot() int { return s.slot }

// FramesInFlight returns the number of frame slots.
func (s *Synchronizer) FramesInFlight() int { return len(s.inFlight) }

// ImageCount returns the number of chain images tracked.
func (s *Synchronizer) ImageCount() int { return len(s.owners) }

// ImageAvailable returns the current slot's image-available semaphore.
func (s *Synchronizer) ImageAvailable() driver.Semaphore { return s.imageAvailable[s.slot] }

// InFlight returns the current slot's in-flight fence.
func (s *Synchronizer) InFlight() driver.Fence { return s.inFlight[s.slot] }

// RenderFinished returns the render-finished semaphore of image i.
func (s *Synchronizer) RenderFinished(i int) driver.Semaphore { return s.renderFinished[i] }

// Owner returns the fence guarding image i, or nil.
func (s *Synchronizer) Owner(i int) driver.Fence { return s.owners[i] }

// WaitSlot blocks until the previous frame submitted from the current slot
// has completed.
func (s *Synchronizer) WaitSlot() error {
	if err := s.dev.Handle().Wait(s.inFlight[s.slot], s.dev.FenceTimeout()); err != nil {
		return fmt.Errorf("frame: wait slot %d: %w", s.slot, err)
	}
	return nil
}

// WaitImage blocks until the frame that last used image i has completed.
// The current slot's own fence was already waited on by WaitSlot.
func (s *Synchronizer) WaitImage(i int) error {
	if i < 0 || i >= len(s.owners) {
		return fmt.Errorf("frame: image index %d out of range [0, %d)", i, len(s.owners))
	}
	owner := s.owners[i]
	if owner == nil || owner == s.inFlight[s.slot] {
		return nil
	}
	if err := s.dev.Handle().Wait(owner, s.dev.FenceTimeout()); err != nil {
		return fmt.Errorf("frame: wait image %d: %w", i, err)
	}
	return nil
}

// Claim resets the current slot's fence and records it as the owner of
// image i. Call it after recording, immediately before submission.
func (s *Synchronizer) Claim(i int) error {
	if i < 0 || i >= len(s.owners) {
		return fmt.Errorf("frame: image index %d out of range [0, %d)", i, len(s.owners))
	}
	f := s.inFlight[s.slot]
	if err := s.dev.Handle().Reset(f); err != nil {
		return fmt.Errorf("frame: reset slot %d: %w", s.slot, err)
	}
	s.owners[i] = f
	return nil
}

// Advance moves to the next frame slot.
func (s *Synchronizer) Advance() {
	s.slot = (s.slot + 1) % len(s.inFlight)
}

// Destroy releases every semaphore and fence. The device must be idle.
func (s *Synchronizer) Destroy() {
	for _, sem := range s.imageAvailable {
		sem.Destroy()
	}
	for _, f := range s.inFlight {
		f.Destroy()
	}
	for _, sem := range s.renderFinished {
		sem.Destroy()
	}
	s.imageAvailable, s.inFlight, s.renderFinished = nil, nil, nil
	clear(s.owners)
}
