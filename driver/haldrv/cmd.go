package haldrv

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pushRingSize is the size of one push-constant emulation buffer.
const pushRingSize = 64 << 10

type queue struct {
	dev *device
	hal hal.Queue
}

func (q *queue) Family() int { return 0 }

func (q *queue) Submit(desc driver.SubmitDesc) error {
	bufs := make([]hal.CommandBuffer, 0, len(desc.Cmds))
	for _, c := range desc.Cmds {
		cb, ok := c.(*cmdBuffer)
		if !ok || cb.recorded == nil {
			return errors.New("haldrv: submit of command buffer that is not recorded")
		}
		bufs = append(bufs, cb.recorded)
	}
	idx, err := q.hal.Submit(bufs)
	if err != nil {
		return fmt.Errorf("haldrv: submit: %w", mapError(err))
	}
	if f, ok := desc.Fence.(*fence); ok {
		f.value = idx
		f.submitted = true
		f.signaled = false
	}
	return nil
}

func (q *queue) Present(desc driver.PresentDesc) error {
	sc, ok := desc.Swapchain.(*swapchain)
	if !ok {
		return errors.New("haldrv: foreign swapchain")
	}
	return sc.present(q, desc.Index)
}

// pushRing is a persistently mapped uniform buffer holding push-constant
// slots for one command buffer.
type pushRing struct {
	buf    hal.Buffer
	data   []byte
	used   int
	groups map[hal.BindGroupLayout]hal.BindGroup
}

type cmdBuffer struct {
	dev      *device
	enc      hal.CommandEncoder
	recorded hal.CommandBuffer
	pass     hal.RenderPassEncoder
	pipeline *pipeline
	rings    []*pushRing
	ring     int
	err      error
}

func (d *device) NewCmdBuffer() (driver.CmdBuffer, error) {
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "engine_encoder"})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create command encoder: %w", err)
	}
	return &cmdBuffer{dev: d, enc: enc}, nil
}

func (c *cmdBuffer) Begin() error {
	if c.recorded != nil {
		return errors.New("haldrv: begin on command buffer that is not reset")
	}
	c.err = nil
	if err := c.enc.BeginEncoding("engine_frame"); err != nil {
		return fmt.Errorf("haldrv: begin encoding: %w", err)
	}
	return nil
}

func (c *cmdBuffer) End() error {
	if c.pass != nil {
		c.enc.DiscardEncoding()
		return errors.New("haldrv: end inside a render pass")
	}
	if c.err != nil {
		c.enc.DiscardEncoding()
		return c.err
	}
	cb, err := c.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("haldrv: end encoding: %w", err)
	}
	c.recorded = cb
	return nil
}

func (c *cmdBuffer) Reset() error {
	if c.recorded != nil {
		c.dev.hal.FreeCommandBuffer(c.recorded)
		c.recorded = nil
	}
	for _, r := range c.rings {
		r.used = 0
	}
	c.ring = 0
	c.pipeline = nil
	return nil
}

func (c *cmdBuffer) Destroy() {
	_ = c.Reset()
	for _, r := range c.rings {
		for _, g := range r.groups {
			c.dev.hal.DestroyBindGroup(g)
		}
		if err := c.dev.hal.UnmapBuffer(r.buf); err != nil {
			slogger().Warn("haldrv: unmap push ring", "err", err)
		}
		c.dev.hal.DestroyBuffer(r.buf)
	}
	c.rings = nil
	c.enc.Destroy()
}

// fail records the first recording error; End reports it.
func (c *cmdBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *cmdBuffer) CopyBuffer(src, dst driver.Buffer, regions ...driver.BufferCopy) {
	s, ok1 := src.(*buffer)
	t, ok2 := dst.(*buffer)
	if !ok1 || !ok2 || s.hal == nil || t.hal == nil {
		c.fail(errors.New("haldrv: copy between unbound buffers"))
		return
	}
	hr := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		hr[i] = hal.BufferCopy{SrcOffset: uint64(r.SrcOffset), DstOffset: uint64(r.DstOffset), Size: uint64(r.Size)}
	}
	c.enc.CopyBufferToBuffer(s.hal, t.hal, hr)
}

func (c *cmdBuffer) BeginPass(desc driver.PassDesc) {
	fb, ok := desc.Framebuffer.(*framebuffer)
	if !ok {
		c.fail(errors.New("haldrv: foreign framebuffer"))
		return
	}
	color, err := fb.color.resolve()
	if err != nil {
		c.fail(err)
		return
	}
	rp := &hal.RenderPassDescriptor{
		Label: "engine_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       color,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: desc.ClearColor,
		}},
	}
	if fb.depth != nil {
		rp.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            fb.depth.hal,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: desc.ClearDepth,
			StencilLoadOp:   gputypes.LoadOpClear,
			StencilStoreOp:  gputypes.StoreOpDiscard,
		}
	}
	c.pass = c.enc.BeginRenderPass(rp)
}

func (c *cmdBuffer) EndPass() {
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
}

func (c *cmdBuffer) SetPipeline(p driver.Pipeline) {
	hp, ok := p.(*pipeline)
	if !ok || c.pass == nil {
		c.fail(errors.New("haldrv: set pipeline outside a pass"))
		return
	}
	c.pipeline = hp
	c.pass.SetPipeline(hp.hal)
}

func (c *cmdBuffer) SetBindingTable(index int, t driver.BindingTable) {
	bt, ok := t.(*bindingTable)
	if !ok || c.pass == nil {
		c.fail(errors.New("haldrv: set binding table outside a pass"))
		return
	}
	c.pass.SetBindGroup(uint32(index), bt.hal, nil) //nolint:gosec // bind group indexes are small
}

func (c *cmdBuffer) PushConstants(_ gputypes.ShaderStages, offset uint32, data []byte) {
	if c.pass == nil || c.pipeline == nil || c.pipeline.pushIndex < 0 {
		c.fail(errors.New("haldrv: push constants without a pipeline declaring them"))
		return
	}
	if int(offset)+len(data) > pushSlotSize {
		c.fail(fmt.Errorf("haldrv: push constants overflow %d bytes", pushSlotSize))
		return
	}
	r, slotOff, err := c.nextSlot()
	if err != nil {
		c.fail(err)
		return
	}
	copy(r.data[slotOff+int(offset):], data)
	g, err := c.ringGroup(r, c.pipeline.pushLayout)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass.SetBindGroup(uint32(c.pipeline.pushIndex), g, []uint32{uint32(slotOff)}) //nolint:gosec // bounded by pushRingSize
}

// nextSlot reserves a push-constant slot, growing the ring set as needed.
func (c *cmdBuffer) nextSlot() (*pushRing, int, error) {
	for c.ring < len(c.rings) && c.rings[c.ring].used+pushSlotSize > pushRingSize {
		c.ring++
	}
	if c.ring == len(c.rings) {
		buf, err := c.dev.hal.CreateBuffer(&hal.BufferDescriptor{
			Label: "engine_push_ring",
			Size:  pushRingSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("haldrv: create push ring: %w", err)
		}
		m, err := c.dev.hal.MapBuffer(buf, 0, pushRingSize)
		if err != nil {
			c.dev.hal.DestroyBuffer(buf)
			return nil, 0, fmt.Errorf("haldrv: map push ring: %w", err)
		}
		c.rings = append(c.rings, &pushRing{
			buf:    buf,
			data:   unsafe.Slice((*byte)(m.Ptr), pushRingSize), //nolint:gosec // mapping covers the ring
			groups: make(map[hal.BindGroupLayout]hal.BindGroup),
		})
	}
	r := c.rings[c.ring]
	off := r.used
	r.used += pushSlotSize
	return r, off, nil
}

func (c *cmdBuffer) ringGroup(r *pushRing, layout hal.BindGroupLayout) (hal.BindGroup, error) {
	if g, ok := r.groups[layout]; ok {
		return g, nil
	}
	g, err := c.dev.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "engine_push_group",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: r.buf.NativeHandle(), Size: pushSlotSize},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("haldrv: create push bind group: %w", err)
	}
	r.groups[layout] = g
	return g, nil
}

func (c *cmdBuffer) SetViewport(vp driver.Viewport) {
	if c.pass != nil {
		c.pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	}
}

func (c *cmdBuffer) SetScissor(x, y int32, width, height uint32) {
	if c.pass != nil {
		c.pass.SetScissorRect(uint32(max(x, 0)), uint32(max(y, 0)), width, height) //nolint:gosec // clamped non-negative
	}
}

func (c *cmdBuffer) SetVertexBuffer(slot int, buf driver.Buffer, offset int64) {
	b, ok := buf.(*buffer)
	if !ok || c.pass == nil || b.hal == nil {
		c.fail(errors.New("haldrv: set vertex buffer outside a pass"))
		return
	}
	c.pass.SetVertexBuffer(uint32(slot), b.hal, uint64(offset)) //nolint:gosec // slot and offset are non-negative
}

func (c *cmdBuffer) SetIndexBuffer(buf driver.Buffer, format gputypes.IndexFormat, offset int64) {
	b, ok := buf.(*buffer)
	if !ok || c.pass == nil || b.hal == nil {
		c.fail(errors.New("haldrv: set index buffer outside a pass"))
		return
	}
	c.pass.SetIndexBuffer(b.hal, format, uint64(offset)) //nolint:gosec // offset is non-negative
}

func (c *cmdBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if c.pass == nil {
		c.fail(errors.New("haldrv: draw outside a pass"))
		return
	}
	c.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}
