// Package render drives frames: it acquires a chain image, waits for the
// GPU to release the resources the frame reuses, records the draw list,
// submits it and presents the image.
//
// A Renderer owns one uniform buffer, binding table, command buffer and
// framebuffer per chain image, a depth attachment shared by all of them,
// and the frame synchronizer. All of it is sized by the chain and rebuilt
// with [Renderer.Rebuild] whenever the chain is recreated. Meshes are owned
// by the mesh.Store and survive rebuilds.
//
// Frame state machine:
//
//	Idle → Acquiring → Synchronizing → Updating → Recording → Submitting → Presenting → Idle
//	            ↘                                                             ↙
//	                                    ChainInvalid
//
// A stale chain reported by acquire or present makes DrawFrame return
// [ErrChainInvalid]. The caller then idles the device, recreates the chain
// and calls Rebuild.
package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/frame"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/mesh"
	"github.com/gogpu/engine/resource"
	"github.com/gogpu/engine/shader"
	"github.com/gogpu/engine/swapchain"
	"github.com/gogpu/gputypes"
)

// ErrChainInvalid is returned by DrawFrame when the presentation chain is
// stale or suboptimal and must be recreated.
var ErrChainInvalid = errors.New("render: presentation chain invalid")

// DefaultFramesInFlight is used when Config.FramesInFlight is zero.
const DefaultFramesInFlight = 2

// DefaultClearColor is the clear color of the demo scene.
var DefaultClearColor = gputypes.Color{R: 0.05, G: 0.05, B: 0.08, A: 1}

// mat4Size is the encoded size of a mgl32.Mat4.
const mat4Size = 64

// State is the phase of the frame state machine.
type State int

const (
	Idle State = iota
	Acquiring
	Synchronizing
	Updating
	Recording
	Submitting
	Presenting
	ChainInvalid
)

var stateNames = [...]string{
	Idle:          "Idle",
	Acquiring:     "Acquiring",
	Synchronizing: "Synchronizing",
	Updating:      "Updating",
	Recording:     "Recording",
	Submitting:    "Submitting",
	Presenting:    "Presenting",
	ChainInvalid:  "ChainInvalid",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FrameGlobals are the per-frame shader globals.
type FrameGlobals struct {
	ViewProj mgl32.Mat4
}

// Item is one draw: a mesh and its model transform.
type Item struct {
	Mesh  mesh.ID
	Model mgl32.Mat4
}

// Config configures a Renderer.
type Config struct {
	// FramesInFlight is the number of frames the CPU may record ahead of
	// the GPU. Zero means DefaultFramesInFlight.
	FramesInFlight int

	// Shaders is the pipeline code. Vertex inputs follow mesh.VertexLayout,
	// group 0 binding 0 is FrameGlobals and the model matrix arrives as a
	// 64-byte vertex push range.
	Shaders shader.Set

	ClearColor gputypes.Color

	// DepthFormats are the depth formats to try, in order. Nil means
	// gpu.DefaultDepthFormats.
	DepthFormats []gputypes.TextureFormat
}

// Stats counts frame outcomes.
type Stats struct {
	Frames        uint64
	ChainInvalids uint64
	Rebuilds      uint64
	Draws         uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("Frames[%d drawn, %d draws, %d invalid, %d rebuilds]",
		s.Frames, s.Draws, s.ChainInvalids, s.Rebuilds)
}

// perImage is the state indexed by chain image.
type perImage struct {
	ubo    *resource.Buffer
	mapped []byte
	table  driver.BindingTable
	cmd    driver.CmdBuffer
	fb     driver.Framebuffer
}

// Renderer is the frame orchestrator. It is not safe for concurrent use;
// a single goroutine drives it.
type Renderer struct {
	dev    *gpu.Device
	chain  *swapchain.Chain
	alloc  *resource.Allocator
	meshes *mesh.Store
	cfg    Config

	depthFormat gputypes.TextureFormat
	colorFormat gputypes.TextureFormat

	vs, fs   driver.ShaderModule
	layout   driver.BindingLayout
	pipeline driver.Pipeline

	sync   *frame.Synchronizer
	depth  *resource.Image
	images []perImage

	state State
	stats Stats

	// draws is scratch space reused by DrawFrame.
	draws []*mesh.Mesh
}

// New creates a renderer drawing into chain.
func New(dev *gpu.Device, chain *swapchain.Chain, alloc *resource.Allocator, meshes *mesh.Store, cfg Config) (*Renderer, error) {
	if cfg.FramesInFlight == 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.FramesInFlight < 0 {
		return nil, fmt.Errorf("render: frames in flight %d must be positive", cfg.FramesInFlight)
	}
	if err := cfg.Shaders.Validate(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	depthFormat, err := dev.PickDepthFormat(cfg.DepthFormats...)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	r := &Renderer{
		dev:         dev,
		chain:       chain,
		alloc:       alloc,
		meshes:      meshes,
		cfg:         cfg,
		depthFormat: depthFormat,
	}
	if err := r.createShared(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.createChainState(); err != nil {
		r.Destroy()
		return nil, err
	}
	slogger().Info("render: renderer created",
		"frames_in_flight", cfg.FramesInFlight,
		"images", len(r.images),
		"depth_format", depthFormat.String())
	return r, nil
}

// createShared creates the objects that do not depend on the chain.
func (r *Renderer) createShared() error {
	h := r.dev.Handle()
	var err error
	if r.vs, err = h.NewShaderModule(r.cfg.Shaders.Vertex.Code); err != nil {
		return fmt.Errorf("render: vertex shader: %w", err)
	}
	if r.fs, err = h.NewShaderModule(r.cfg.Shaders.Fragment.Code); err != nil {
		return fmt.Errorf("render: fragment shader: %w", err)
	}
	r.layout, err = h.NewBindingLayout([]gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageVertex,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}})
	if err != nil {
		return fmt.Errorf("render: binding layout: %w", err)
	}
	return nil
}

func (r *Renderer) createPipeline() error {
	p, err := r.dev.Handle().NewPipeline(driver.PipelineDesc{
		Vertex:        driver.ShaderFunc{Module: r.vs, Entry: r.cfg.Shaders.Vertex.Entry},
		Fragment:      driver.ShaderFunc{Module: r.fs, Entry: r.cfg.Shaders.Fragment.Entry},
		VertexBuffers: []gputypes.VertexBufferLayout{mesh.VertexLayout()},
		Layouts:       []driver.BindingLayout{r.layout},
		PushRanges:    []driver.PushRange{{Stages: gputypes.ShaderStageVertex, Size: mat4Size}},
		ColorFormat:   r.chain.Format().Format,
		DepthFormat:   r.depthFormat,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		CullMode:      gputypes.CullModeBack,
		FrontFace:     gputypes.FrontFaceCCW,
	})
	if err != nil {
		return fmt.Errorf("render: pipeline: %w", err)
	}
	r.pipeline = p
	r.colorFormat = r.chain.Format().Format
	return nil
}

// createChainState creates everything sized or formatted by the chain.
func (r *Renderer) createChainState() error {
	if r.pipeline == nil || r.colorFormat != r.chain.Format().Format {
		if r.pipeline != nil {
			r.pipeline.Destroy()
			r.pipeline = nil
		}
		if err := r.createPipeline(); err != nil {
			return err
		}
	}

	n := r.chain.ImageCount()
	s, err := frame.New(r.dev, n, r.cfg.FramesInFlight)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	r.sync = s

	ext := r.chain.Extent()
	if r.depth, err = r.alloc.CreateDepthImage(r.depthFormat, ext); err != nil {
		return fmt.Errorf("render: depth attachment: %w", err)
	}

	h := r.dev.Handle()
	views := r.chain.Views()
	r.images = make([]perImage, 0, n)
	for i := range n {
		// Append first so a failure below is cleaned up by destroyChainState.
		r.images = append(r.images, perImage{})
		p := &r.images[i]

		if p.ubo, err = r.alloc.CreateBuffer(mat4Size, gputypes.BufferUsageUniform,
			driver.MemoryHostVisible|driver.MemoryHostCoherent); err != nil {
			return fmt.Errorf("render: uniform buffer %d: %w", i, err)
		}
		if p.mapped, err = p.ubo.Map(); err != nil {
			return fmt.Errorf("render: map uniform buffer %d: %w", i, err)
		}
		if p.table, err = h.NewBindingTable(r.layout, []driver.BufferBinding{{
			Binding: 0,
			Buffer:  p.ubo.Handle(),
			Size:    mat4Size,
		}}); err != nil {
			return fmt.Errorf("render: binding table %d: %w", i, err)
		}
		if p.cmd, err = h.NewCmdBuffer(); err != nil {
			return fmt.Errorf("render: command buffer %d: %w", i, err)
		}
		if p.fb, err = h.NewFramebuffer(driver.FramebufferDesc{
			Color:  views[i],
			Depth:  r.depth.View(),
			Extent: ext,
		}); err != nil {
			return fmt.Errorf("render: framebuffer %d: %w", i, err)
		}
	}
	return nil
}

// destroyChainState releases per-image state, the depth attachment and
// the synchronizer. The device must be idle.
func (r *Renderer) destroyChainState() {
	for i := range r.images {
		p := &r.images[i]
		if p.fb != nil {
			p.fb.Destroy()
		}
		if p.cmd != nil {
			p.cmd.Destroy()
		}
		if p.table != nil {
			p.table.Destroy()
		}
		if p.ubo != nil {
			if p.mapped != nil {
				p.ubo.Unmap()
			}
			p.ubo.Destroy()
		}
	}
	r.images = nil
	if r.depth != nil {
		r.depth.Destroy()
		r.depth = nil
	}
	if r.sync != nil {
		r.sync.Destroy()
		r.sync = nil
	}
}

// Rebuild recreates every per-image collection, the depth attachment and
// the synchronizer for the chain's current images. Call it after the
// device is idle and the chain has been recreated.
func (r *Renderer) Rebuild() error {
	r.destroyChainState()
	if err := r.createChainState(); err != nil {
		return err
	}
	r.state = Idle
	r.stats.Rebuilds++
	slogger().Info("render: rebuilt for chain",
		"images", len(r.images), "extent", r.chain.Extent().String())
	return nil
}

// DrawFrame renders items with globals into the next chain image and
// presents it. It returns ErrChainInvalid when the chain must be
// recreated; the frame was then either not started (stale acquire) or
// already submitted (stale or suboptimal present). Other errors are fatal.
func (r *Renderer) DrawFrame(globals FrameGlobals, items []Item) error {
	if r.sync == nil {
		return errors.New("render: renderer destroyed")
	}
	draws, err := r.resolve(items)
	if err != nil {
		return err
	}

	r.state = Acquiring
	if err := r.sync.WaitSlot(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	idx, suboptimal, err := r.chain.Handle().Acquire(r.sync.ImageAvailable(), r.dev.FenceTimeout())
	if err != nil {
		if errors.Is(err, driver.ErrOutOfDate) {
			return r.invalid("acquire", err)
		}
		return fmt.Errorf("render: acquire: %w", err)
	}

	r.state = Synchronizing
	if err := r.sync.WaitImage(idx); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	r.state = Updating
	img := &r.images[idx]
	putMat4(img.mapped, globals.ViewProj)

	r.state = Recording
	if err := r.record(img, items, draws); err != nil {
		return err
	}

	r.state = Submitting
	if err := r.sync.Claim(idx); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	err = r.dev.GraphicsQueue().Submit(driver.SubmitDesc{
		Cmds:   []driver.CmdBuffer{img.cmd},
		Wait:   []driver.Semaphore{r.sync.ImageAvailable()},
		Signal: []driver.Semaphore{r.sync.RenderFinished(idx)},
		Fence:  r.sync.InFlight(),
	})
	if err != nil {
		return fmt.Errorf("render: submit: %w", err)
	}
	r.stats.Draws += uint64(len(draws))

	r.state = Presenting
	err = r.dev.PresentQueue().Present(driver.PresentDesc{
		Swapchain: r.chain.Handle(),
		Index:     idx,
		Wait:      []driver.Semaphore{r.sync.RenderFinished(idx)},
	})
	switch {
	case errors.Is(err, driver.ErrOutOfDate), errors.Is(err, driver.ErrSuboptimal):
		return r.invalid("present", err)
	case err != nil:
		return fmt.Errorf("render: present: %w", err)
	case suboptimal:
		return r.invalid("acquire", driver.ErrSuboptimal)
	}

	r.sync.Advance()
	r.state = Idle
	r.stats.Frames++
	return nil
}

// resolve looks up every item's mesh before any GPU work starts.
func (r *Renderer) resolve(items []Item) ([]*mesh.Mesh, error) {
	r.draws = r.draws[:0]
	for _, it := range items {
		m, err := r.meshes.Get(it.Mesh)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		r.draws = append(r.draws, m)
	}
	return r.draws, nil
}

func (r *Renderer) invalid(stage string, err error) error {
	r.state = ChainInvalid
	r.stats.ChainInvalids++
	slogger().Debug("render: chain invalid", "stage", stage, "err", err)
	return fmt.Errorf("%w: %s: %w", ErrChainInvalid, stage, err)
}

// record re-records the image's command buffer. The buffer is not pending:
// WaitImage has observed the fence of the frame that last submitted it.
func (r *Renderer) record(img *perImage, items []Item, draws []*mesh.Mesh) error {
	cb := img.cmd
	if err := cb.Reset(); err != nil {
		return fmt.Errorf("render: reset command buffer: %w", err)
	}
	if err := cb.Begin(); err != nil {
		return fmt.Errorf("render: begin command buffer: %w", err)
	}

	ext := r.chain.Extent()
	cb.BeginPass(driver.PassDesc{
		Framebuffer: img.fb,
		ClearColor:  r.cfg.ClearColor,
		ClearDepth:  1,
	})
	cb.SetPipeline(r.pipeline)
	cb.SetBindingTable(0, img.table)
	cb.SetViewport(driver.Viewport{
		Width:    float32(ext.Width),
		Height:   float32(ext.Height),
		MaxDepth: 1,
	})
	cb.SetScissor(0, 0, ext.Width, ext.Height)

	var push [mat4Size]byte
	for i, m := range draws {
		putMat4(push[:], items[i].Model)
		cb.PushConstants(gputypes.ShaderStageVertex, 0, push[:])
		cb.SetVertexBuffer(0, m.Vertices.Handle(), 0)
		cb.SetIndexBuffer(m.Indices.Handle(), mesh.IndexFormat, 0)
		cb.DrawIndexed(m.IndexCount, 1, 0, 0, 0)
	}
	cb.EndPass()

	if err := cb.End(); err != nil {
		return fmt.Errorf("render: end command buffer: %w", err)
	}
	return nil
}

// putMat4 writes m to dst little-endian. mgl32 is column-major, the
// layout of a WGSL/SPIR-V mat4x4<f32>.
func putMat4(dst []byte, m mgl32.Mat4) {
	_ = dst[mat4Size-1]
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// State returns the current phase of the frame state machine.
func (r *Renderer) State() State { return r.state }

// Stats returns the frame counters.
func (r *Renderer) Stats() Stats { return r.stats }

// Slot returns the current frame slot.
func (r *Renderer) Slot() int {
	if r.sync == nil {
		return 0
	}
	return r.sync.Slot()
}

// FramesInFlight returns the number of frame slots.
func (r *Renderer) FramesInFlight() int { return r.cfg.FramesInFlight }

// ImageCount returns the number of per-image state sets.
func (r *Renderer) ImageCount() int { return len(r.images) }

// DepthFormat returns the depth attachment format.
func (r *Renderer) DepthFormat() gputypes.TextureFormat { return r.depthFormat }

// Chain returns the chain the renderer draws into.
func (r *Renderer) Chain() *swapchain.Chain { return r.chain }

// Destroy releases everything the renderer owns. The device must be idle.
// Destroy is a no-op on a destroyed renderer.
func (r *Renderer) Destroy() {
	r.destroyChainState()
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.layout != nil {
		r.layout.Destroy()
		r.layout = nil
	}
	if r.fs != nil {
		r.fs.Destroy()
		r.fs = nil
	}
	if r.vs != nil {
		r.vs.Destroy()
		r.vs = nil
	}
}
