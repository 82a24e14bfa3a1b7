package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/input"
	"github.com/gogpu/engine/mesh"
	"github.com/gogpu/engine/render"
	"github.com/gogpu/engine/resource"
	"github.com/gogpu/engine/shader"
	"github.com/gogpu/engine/swapchain"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("engine: closed")

// minimizedPoll is how long Run sleeps between polls while the window has
// nothing to present to.
const minimizedPoll = 16 * time.Millisecond

// Window is the desktop window the engine presents to.
type Window interface {
	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() (width, height int)

	// TakeResized reports whether the framebuffer was resized since the
	// previous call, and clears the flag.
	TakeResized() bool

	Minimized() bool
	ShouldClose() bool

	// PollEvents dispatches pending window events.
	PollEvents()

	// NativeHandles returns the platform display and window handles used
	// to create the presentation surface.
	NativeHandles() (display, window uintptr, err error)
}

// Game is driven by Run once per frame.
type Game interface {
	// Load runs once before the first frame. Meshes are uploaded here
	// with Engine.UploadMesh.
	Load(e *Engine) error

	// Update advances the simulation by dt seconds.
	Update(dt float32, in *input.State)

	// Render returns the frame's globals and draw list for a framebuffer
	// of the given aspect ratio.
	Render(aspect float32) (render.FrameGlobals, []render.Item)
}

// Stats counts frame outcomes.
type Stats struct {
	render.Stats

	// Skipped counts frames not drawn because the window was minimized
	// or had no drawable area.
	Skipped uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("%s skipped=%d", s.Stats.String(), s.Skipped)
}

// Engine owns every GPU object and drives frames for a Window.
//
// Teardown runs in reverse creation order: device idle, renderer, meshes,
// chain, device, context.
type Engine struct {
	opts options
	win  Window

	ctx      *gpu.Context
	dev      *gpu.Device
	chain    *swapchain.Chain
	alloc    *resource.Allocator
	meshes   *mesh.Store
	renderer *render.Renderer

	input *input.State
	clock *Clock

	// stale is set while the chain needs recreating but the window has no
	// drawable area to recreate it at.
	stale   bool
	skipped uint64
}

// New creates the graphics context, device, presentation chain and
// renderer for win. If win is a gpucontext.EventSource its key events
// feed the engine's input state.
func New(win Window, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var shaders shader.Set
	if o.shaders != nil {
		shaders = *o.shaders
	} else {
		var err error
		if shaders, err = shader.Builtin(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	display, handle, err := win.NativeHandles()
	if err != nil {
		return nil, fmt.Errorf("engine: window handles: %w", err)
	}

	e := &Engine{
		opts:   o,
		win:    win,
		meshes: mesh.NewStore(),
		input:  input.New(o.bindings),
		clock:  NewClock(),
	}
	if err := e.init(shaders, display, handle); err != nil {
		_ = e.Close()
		return nil, err
	}
	if src, ok := win.(gpucontext.EventSource); ok {
		e.input.Attach(src)
	}

	Logger().Info("engine: ready",
		"driver", e.ctx.DriverName(),
		"adapter", e.dev.Info().Name,
		"extent", e.chain.Extent().String(),
		"images", e.chain.ImageCount(),
		"frames_in_flight", e.renderer.FramesInFlight())
	return e, nil
}

func (e *Engine) init(shaders shader.Set, display, handle uintptr) error {
	var err error
	e.ctx, err = gpu.NewContext(gpu.ContextConfig{
		AppName:    e.opts.appName,
		Driver:     e.opts.driver,
		Validation: e.opts.validation,
		Display:    display,
		Window:     handle,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if e.dev, err = gpu.NewDevice(e.ctx, gpu.WithFenceTimeout(e.opts.fenceTimeout)); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if e.chain, err = swapchain.New(e.dev, e.framebufferExtent()); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.alloc = resource.New(e.dev)
	e.renderer, err = render.New(e.dev, e.chain, e.alloc, e.meshes, render.Config{
		FramesInFlight: e.opts.framesInFlight,
		Shaders:        shaders,
		ClearColor:     e.opts.clearColor,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

func (e *Engine) framebufferExtent() driver.Extent {
	w, h := e.win.FramebufferSize()
	return driver.Extent{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))} //nolint:gosec // clamped to non-negative
}

// paused reports whether there is nothing to present to.
func (e *Engine) paused() bool {
	return e.win.Minimized() || e.framebufferExtent().IsZero()
}

// UploadMesh copies d into device-local buffers and returns its ID.
func (e *Engine) UploadMesh(d mesh.Data) (mesh.ID, error) {
	if e.renderer == nil {
		return 0, ErrClosed
	}
	return e.meshes.Upload(e.alloc, d)
}

// DrawFrame draws one frame. It does nothing while the window is
// minimized or zero-sized, recreates the chain after a resize, and
// rebuilds transparently when the renderer reports the chain invalid.
// Returned errors are fatal.
func (e *Engine) DrawFrame(globals render.FrameGlobals, items []render.Item) error {
	if e.renderer == nil {
		return ErrClosed
	}
	if e.paused() {
		e.skipped++
		return nil
	}
	if e.win.TakeResized() || e.stale {
		if err := e.rebuild(); err != nil {
			return err
		}
		if e.stale {
			e.skipped++
			return nil
		}
	}

	err := e.renderer.DrawFrame(globals, items)
	if errors.Is(err, render.ErrChainInvalid) {
		Logger().Debug("engine: chain invalid", "err", err)
		return e.rebuild()
	}
	return err
}

// rebuild waits for the device, recreates the chain at the current
// framebuffer size and rebuilds the renderer's per-image state. A zero
// size defers the rebuild to the next frame.
func (e *Engine) rebuild() error {
	if err := e.dev.WaitIdle(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	err := e.chain.Recreate(e.framebufferExtent())
	if errors.Is(err, swapchain.ErrZeroExtent) {
		Logger().Warn("engine: rebuild deferred, zero framebuffer")
		e.stale = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := e.renderer.Rebuild(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.stale = false
	return nil
}

// Run drives g until the window closes, ctx is canceled or a frame fails.
// Each iteration polls events, updates the game with the frame delta and
// draws the game's draw list. While the window is minimized frames are
// skipped and the loop sleeps between polls.
func (e *Engine) Run(ctx context.Context, g Game) error {
	if e.renderer == nil {
		return ErrClosed
	}
	if err := g.Load(e); err != nil {
		return fmt.Errorf("engine: load: %w", err)
	}

	e.clock.Reset()
	for !e.win.ShouldClose() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.win.PollEvents()
		g.Update(e.clock.Tick(), e.input)
		e.input.EndFrame()

		if e.paused() {
			e.skipped++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minimizedPoll):
			}
			continue
		}

		globals, items := g.Render(e.Aspect())
		if err := e.DrawFrame(globals, items); err != nil {
			return err
		}
	}
	return nil
}

// Aspect returns the chain's width over height.
func (e *Engine) Aspect() float32 {
	if e.chain == nil {
		return 1
	}
	ext := e.chain.Extent()
	if ext.Height == 0 {
		return 1
	}
	return float32(ext.Width) / float32(ext.Height)
}

// Stats returns frame counters.
func (e *Engine) Stats() Stats {
	s := Stats{Skipped: e.skipped}
	if e.renderer != nil {
		s.Stats = e.renderer.Stats()
	}
	return s
}

// Input returns the keyboard state.
func (e *Engine) Input() *input.State { return e.input }

// Device returns the logical device.
func (e *Engine) Device() *gpu.Device { return e.dev }

// Chain returns the presentation chain.
func (e *Engine) Chain() *swapchain.Chain { return e.chain }

// Allocator returns the resource allocator.
func (e *Engine) Allocator() *resource.Allocator { return e.alloc }

// Meshes returns the mesh store.
func (e *Engine) Meshes() *mesh.Store { return e.meshes }

// Renderer returns the frame orchestrator.
func (e *Engine) Renderer() *render.Renderer { return e.renderer }

// Close waits for the device to go idle and releases everything in
// reverse creation order. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.ctx == nil {
		return nil
	}
	var err error
	if e.dev != nil {
		if werr := e.dev.WaitIdle(); werr != nil {
			err = fmt.Errorf("engine: %w", werr)
		}
	}
	if e.renderer != nil {
		e.renderer.Destroy()
		e.renderer = nil
	}
	e.meshes.DestroyAll()
	if e.chain != nil {
		e.chain.Destroy()
		e.chain = nil
	}
	if e.dev != nil {
		e.dev.Destroy()
		e.dev = nil
	}
	e.ctx.Destroy()
	e.ctx = nil
	Logger().Info("engine: closed")
	return err
}
