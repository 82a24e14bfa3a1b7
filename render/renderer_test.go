package render_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/driver/drivertest"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/mesh"
	"github.com/gogpu/engine/render"
	"github.com/gogpu/engine/resource"
	"github.com/gogpu/engine/shader"
	"github.com/gogpu/engine/swapchain"
)

var extent = driver.Extent{Width: 640, Height: 480}

var identity = mgl32.Ident4()

// fakeShaders returns header-only SPIR-V; the test driver does not look
// past it.
func fakeShaders() shader.Set {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, 0x07230203)
	return shader.Set{
		Vertex:   shader.Module{Code: code, Entry: "main"},
		Fragment: shader.Module{Code: code, Entry: "main"},
	}
}

type fixture struct {
	drv   *drivertest.Driver
	ctx   *gpu.Context
	dev   *gpu.Device
	chain *swapchain.Chain
	alloc *resource.Allocator
	store *mesh.Store
	r     *render.Renderer
	cube  mesh.ID
}

func newFixture(t *testing.T, drv *drivertest.Driver, frames int) *fixture {
	t.Helper()
	f := &fixture{drv: drv, store: mesh.NewStore()}
	var err error
	f.ctx, err = gpu.NewContext(gpu.ContextConfig{Driver: drv})
	require.NoError(t, err)
	f.dev, err = gpu.NewDevice(f.ctx)
	require.NoError(t, err)
	f.chain, err = swapchain.New(f.dev, extent)
	require.NoError(t, err)
	f.alloc = resource.New(f.dev)
	f.cube, err = f.store.Upload(f.alloc, mesh.Cube())
	require.NoError(t, err)
	f.r, err = render.New(f.dev, f.chain, f.alloc, f.store, render.Config{
		FramesInFlight: frames,
		Shaders:        fakeShaders(),
		ClearColor:     render.DefaultClearColor,
	})
	require.NoError(t, err)
	t.Cleanup(f.close)
	return f
}

func (f *fixture) close() {
	if f.dev.Handle() == nil {
		return
	}
	_ = f.dev.WaitIdle()
	f.r.Destroy()
	f.store.DestroyAll()
	f.chain.Destroy()
	f.dev.Destroy()
	f.ctx.Destroy()
}

func (f *fixture) items() []render.Item {
	return []render.Item{{Mesh: f.cube, Model: identity}}
}

// rebuild runs the caller side of the chain-invalid protocol.
func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	require.NoError(t, f.dev.WaitIdle())
	require.NoError(t, f.chain.Recreate(extent))
	require.NoError(t, f.r.Rebuild())
}

func TestDrawFrameCyclesSlots(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	base := f.drv.Stats()

	for i := range 5 {
		if got := f.r.Slot(); got != i%2 {
			t.Errorf("frame %d: slot = %d, want %d", i, got, i%2)
		}
		require.NoError(t, f.r.DrawFrame(render.FrameGlobals{ViewProj: identity}, f.items()))
		assert.Equal(t, render.Idle, f.r.State())
	}

	st := f.drv.Stats()
	assert.Equal(t, 5, st.Submissions-base.Submissions)
	assert.Equal(t, 5, st.Presentations-base.Presentations)
	assert.Equal(t, 5, st.Draws-base.Draws)
	assert.Empty(t, st.Violations)
	assert.Equal(t, uint64(5), f.r.Stats().Frames)
}

func TestOutstandingFramesBounded(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		images uint32
	}{
		{"one frame, three images", 1, 3},
		{"two frames, four images", 2, 4},
		{"two frames, three images", 2, 3},
		{"three frames, three images", 3, 3},
		{"three frames, two images", 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := drivertest.DefaultAdapter()
			cfg.Surface.Caps.MinImages = tt.images - 1
			cfg.Surface.Caps.MaxImages = tt.images
			drv := drivertest.New(cfg)
			f := newFixture(t, drv, tt.frames)
			require.Equal(t, int(tt.images), f.r.ImageCount())

			for range 10 {
				require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
				if p := drv.Stats().Pending; p > tt.frames {
					t.Fatalf("%d frames pending, want at most %d", p, tt.frames)
				}
			}
			st := drv.Stats()
			assert.LessOrEqual(t, st.MaxPending, tt.frames)
			assert.Empty(t, st.Violations)
		})
	}
}

func TestStaleAcquireDoesNotAdvance(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
	base := f.drv.Stats()
	slot := f.r.Slot()

	f.drv.ScriptAcquire(drivertest.AcquireResult{Err: driver.ErrOutOfDate})
	err := f.r.DrawFrame(render.FrameGlobals{}, f.items())
	require.ErrorIs(t, err, render.ErrChainInvalid)
	require.ErrorIs(t, err, driver.ErrOutOfDate)

	assert.Equal(t, render.ChainInvalid, f.r.State())
	assert.Equal(t, slot, f.r.Slot())
	st := f.drv.Stats()
	assert.Equal(t, base.Submissions, st.Submissions, "stale frame was submitted")
	assert.Equal(t, base.Presentations, st.Presentations)

	f.rebuild(t)
	require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
	assert.Empty(t, f.drv.Stats().Violations)
}

func TestSuboptimalPresentAfterSubmission(t *testing.T) {
	for _, presentErr := range []error{driver.ErrSuboptimal, driver.ErrOutOfDate} {
		t.Run(presentErr.Error(), func(t *testing.T) {
			f := newFixture(t, drivertest.New(), 2)
			base := f.drv.Stats()

			f.drv.ScriptPresent(presentErr)
			err := f.r.DrawFrame(render.FrameGlobals{}, f.items())
			require.ErrorIs(t, err, render.ErrChainInvalid)
			require.ErrorIs(t, err, presentErr)

			st := f.drv.Stats()
			assert.Equal(t, 1, st.Submissions-base.Submissions, "frame must be submitted before present fails")
			assert.Equal(t, 1, st.Presentations-base.Presentations)

			f.rebuild(t)
			assert.Equal(t, 0, f.r.Slot())
			for range 3 {
				require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
			}
			assert.Empty(t, f.drv.Stats().Violations)
			assert.Equal(t, uint64(1), f.r.Stats().ChainInvalids)
			assert.Equal(t, uint64(1), f.r.Stats().Rebuilds)
		})
	}
}

func TestSuboptimalAcquireFinishesFrame(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	base := f.drv.Stats()

	f.drv.ScriptAcquire(drivertest.AcquireResult{Suboptimal: true})
	err := f.r.DrawFrame(render.FrameGlobals{}, f.items())
	require.ErrorIs(t, err, render.ErrChainInvalid)
	require.ErrorIs(t, err, driver.ErrSuboptimal)

	st := f.drv.Stats()
	assert.Equal(t, 1, st.Submissions-base.Submissions)
	assert.Equal(t, 1, st.Presentations-base.Presentations)
	assert.Empty(t, st.Violations)
}

func TestRebuildFollowsImageCount(t *testing.T) {
	drv := drivertest.New()
	f := newFixture(t, drv, 2)
	assert.Equal(t, 3, f.r.ImageCount())

	caps := drivertest.DefaultAdapter().Surface.Caps
	caps.MinImages, caps.MaxImages = 3, 5
	drv.SetSurfaceCaps(0, caps)
	f.rebuild(t)
	assert.Equal(t, 4, f.chain.ImageCount())
	assert.Equal(t, f.chain.ImageCount(), f.r.ImageCount())

	caps.MinImages, caps.MaxImages = 1, 2
	drv.SetSurfaceCaps(0, caps)
	f.rebuild(t)
	assert.Equal(t, 2, f.r.ImageCount())

	for range 4 {
		require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
	}
	assert.Empty(t, drv.Stats().Violations)
}

func TestRebuildKeepsMeshes(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	before := f.alloc.Stats()
	f.rebuild(t)
	f.rebuild(t)
	after := f.alloc.Stats()
	assert.Equal(t, before, after, "rebuild leaked or dropped resources")

	m, err := f.store.Get(f.cube)
	require.NoError(t, err)
	assert.Equal(t, uint32(36), m.IndexCount)
}

func TestUnknownMeshFailsBeforeAcquire(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	base := f.drv.Stats()

	err := f.r.DrawFrame(render.FrameGlobals{}, []render.Item{{Mesh: 42}})
	require.ErrorIs(t, err, mesh.ErrUnknownMesh)
	assert.Equal(t, base.Acquisitions, f.drv.Stats().Acquisitions)

	require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
	assert.Empty(t, f.drv.Stats().Violations)
}

func TestEmptyDrawListStillPresents(t *testing.T) {
	f := newFixture(t, drivertest.New(), 2)
	base := f.drv.Stats()
	require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, nil))
	st := f.drv.Stats()
	assert.Equal(t, 1, st.Presentations-base.Presentations)
	assert.Equal(t, base.Draws, st.Draws)
}

func TestTeardownReleasesEverything(t *testing.T) {
	drv := drivertest.New()
	f := newFixture(t, drv, 2)
	for range 3 {
		require.NoError(t, f.r.DrawFrame(render.FrameGlobals{}, f.items()))
	}
	f.close()
	f.r.Destroy()

	st := drv.Stats()
	assert.Zero(t, st.Live)
	assert.Zero(t, st.Pending)
	assert.Empty(t, st.Violations)
}

func TestNewValidatesConfig(t *testing.T) {
	drv := drivertest.New()
	f := newFixture(t, drv, 2)

	_, err := render.New(f.dev, f.chain, f.alloc, f.store, render.Config{Shaders: shader.Set{}})
	assert.ErrorIs(t, err, shader.ErrMissingStage)

	_, err = render.New(f.dev, f.chain, f.alloc, f.store, render.Config{FramesInFlight: -1, Shaders: fakeShaders()})
	assert.Error(t, err)
}

func TestNoDepthFormat(t *testing.T) {
	cfg := drivertest.DefaultAdapter()
	cfg.Formats = nil
	drv := drivertest.New(cfg)
	ctx, err := gpu.NewContext(gpu.ContextConfig{Driver: drv})
	require.NoError(t, err)
	defer ctx.Destroy()
	dev, err := gpu.NewDevice(ctx)
	require.NoError(t, err)
	defer dev.Destroy()
	chain, err := swapchain.New(dev, extent)
	require.NoError(t, err)
	defer chain.Destroy()

	_, err = render.New(dev, chain, resource.New(dev), mesh.NewStore(), render.Config{Shaders: fakeShaders()})
	if !errors.Is(err, gpu.ErrNoDepthFormat) {
		t.Errorf("New() error = %v, want %v", err, gpu.ErrNoDepthFormat)
	}
}

func TestPutMat4ColumnMajor(t *testing.T) {
	m := mgl32.Translate3D(7, 8, 9).Mul4(mgl32.Scale3D(2, 3, 4))
	b := make([]byte, 64)
	render.PutMat4(b, m)

	at := func(word int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[word*4:])) }
	// Column 0 holds the x scale, the translation fills column 3.
	want := map[int]float32{0: 2, 1: 0, 5: 3, 10: 4, 12: 7, 13: 8, 14: 9, 15: 1}
	for word, v := range want {
		if got := at(word); got != v {
			t.Errorf("word %d = %v, want %v", word, got, v)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    render.State
		want string
	}{
		{render.Idle, "Idle"},
		{render.Recording, "Recording"},
		{render.ChainInvalid, "ChainInvalid"},
		{render.State(99), "State(99)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
