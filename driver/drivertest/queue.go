package drivertest

import (
	"errors"
	"time"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
)

type queue struct {
	dev    *device
	family int
}

func (q *queue) Family() int { return q.family }

func (q *queue) Submit(desc driver.SubmitDesc) error {
	d := q.dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range desc.Cmds {
		cb := c.(*cmdBuffer)
		if cb.state != cmdExecutable {
			d.violationLocked("submit of command buffer that is not executable")
			return errors.New("drivertest: command buffer not executable")
		}
		if cb.pending {
			d.violationLocked("submit of pending command buffer")
			return errors.New("drivertest: command buffer pending")
		}
	}
	for _, s := range desc.Wait {
		sem := s.(*semaphore)
		if !sem.signaled {
			d.violationLocked("submit waits on unsignaled semaphore")
			return errors.New("drivertest: wait on unsignaled semaphore")
		}
		sem.signaled = false
	}
	for _, s := range desc.Signal {
		s.(*semaphore).signaled = true
	}

	for _, c := range desc.Cmds {
		cb := c.(*cmdBuffer)
		for _, op := range cb.ops {
			op()
		}
		d.stats.Draws += cb.draws
	}
	d.stats.Submissions++

	if desc.Fence == nil {
		return nil
	}
	f := desc.Fence.(*fence)
	if f.pending || f.signaled {
		d.violationLocked("submit with fence that is not reset")
		return errors.New("drivertest: fence not reset")
	}
	f.pending = true
	for _, c := range desc.Cmds {
		cb := c.(*cmdBuffer)
		cb.pending = true
		f.cmds = append(f.cmds, cb)
	}
	d.pending = append(d.pending, f)
	d.stats.Pending++
	if d.stats.Pending > d.stats.MaxPending {
		d.stats.MaxPending = d.stats.Pending
	}
	return nil
}

func (q *queue) Present(desc driver.PresentDesc) error {
	d := q.dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	sc := desc.Swapchain.(*swapchain)
	if sc.destroyed {
		d.violationLocked("present on destroyed swapchain")
		return errors.New("drivertest: swapchain destroyed")
	}
	if desc.Index < 0 || desc.Index >= len(sc.images) || !sc.acquired[desc.Index] {
		d.violationLocked("present of image %d that was not acquired", desc.Index)
		return errors.New("drivertest: image not acquired")
	}
	for _, s := range desc.Wait {
		sem := s.(*semaphore)
		if !sem.signaled {
			d.violationLocked("present waits on unsignaled semaphore")
			return errors.New("drivertest: wait on unsignaled semaphore")
		}
		sem.signaled = false
	}
	sc.acquired[desc.Index] = false
	d.stats.Presentations++

	if len(d.present) > 0 {
		err := d.present[0]
		d.present = d.present[1:]
		return err
	}
	return nil
}

type swapchain struct {
	obj
	desc     driver.SwapchainDesc
	images   []*image
	acquired map[int]bool
	next     int
}

func (s *swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *swapchain) Acquire(signal driver.Semaphore, _ time.Duration) (int, bool, error) {
	d := s.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.destroyed {
		d.violationLocked("acquire on destroyed swapchain")
		return 0, false, errors.New("drivertest: swapchain destroyed")
	}
	d.stats.Acquisitions++

	var res AcquireResult
	if len(d.acquire) > 0 {
		res = d.acquire[0]
		d.acquire = d.acquire[1:]
	}
	if res.Err != nil {
		return 0, false, res.Err
	}

	sem := signal.(*semaphore)
	if sem.signaled {
		d.violationLocked("acquire signals a semaphore that is already signaled")
		return 0, false, errors.New("drivertest: semaphore already signaled")
	}
	sem.signaled = true

	if s.acquired == nil {
		s.acquired = make(map[int]bool)
	}
	s.next = (s.next + 1) % len(s.images)
	s.acquired[s.next] = true
	return s.next, res.Suboptimal, nil
}

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
)

type cmdBuffer struct {
	obj
	state   cmdState
	pending bool
	inPass  bool
	ops     []func()
	draws   int
}

func (c *cmdBuffer) Begin() error {
	if c.state != cmdInitial {
		return errors.New("drivertest: begin on command buffer that is not reset")
	}
	c.state = cmdRecording
	return nil
}

func (c *cmdBuffer) End() error {
	if c.state != cmdRecording {
		return errors.New("drivertest: end without begin")
	}
	if c.inPass {
		return errors.New("drivertest: end inside a render pass")
	}
	c.state = cmdExecutable
	return nil
}

func (c *cmdBuffer) Reset() error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if c.pending {
		c.drv.violationLocked("reset of pending command buffer")
		return errors.New("drivertest: reset of pending command buffer")
	}
	c.state = cmdInitial
	c.ops = nil
	c.draws = 0
	return nil
}

func (c *cmdBuffer) CopyBuffer(src, dst driver.Buffer, regions ...driver.BufferCopy) {
	s, t := src.(*buffer), dst.(*buffer)
	for _, r := range regions {
		c.ops = append(c.ops, func() {
			if s.mem == nil || t.mem == nil {
				return
			}
			copy(t.mem.data[r.DstOffset:r.DstOffset+r.Size], s.mem.data[r.SrcOffset:r.SrcOffset+r.Size])
		})
	}
}

func (c *cmdBuffer) BeginPass(desc driver.PassDesc) {
	if desc.Framebuffer == nil {
		panic("drivertest: render pass without framebuffer")
	}
	c.inPass = true
}

func (c *cmdBuffer) EndPass() { c.inPass = false }

func (c *cmdBuffer) SetPipeline(driver.Pipeline)                               {}
func (c *cmdBuffer) SetBindingTable(int, driver.BindingTable)                  {}
func (c *cmdBuffer) PushConstants(gputypes.ShaderStages, uint32, []byte)       {}
func (c *cmdBuffer) SetViewport(driver.Viewport)                               {}
func (c *cmdBuffer) SetScissor(int32, int32, uint32, uint32)                   {}
func (c *cmdBuffer) SetVertexBuffer(int, driver.Buffer, int64)                 {}
func (c *cmdBuffer) SetIndexBuffer(driver.Buffer, gputypes.IndexFormat, int64) {}

func (c *cmdBuffer) DrawIndexed(indexCount, instanceCount, _ uint32, _ int32, _ uint32) {
	if !c.inPass {
		panic("drivertest: draw outside a render pass")
	}
	if indexCount > 0 && instanceCount > 0 {
		c.draws++
	}
}
