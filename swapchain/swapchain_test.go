package swapchain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/driver/drivertest"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/swapchain"
	"github.com/gogpu/gputypes"
)

func newDevice(t *testing.T, drv *drivertest.Driver) *gpu.Device {
	t.Helper()
	ctx, err := gpu.NewContext(gpu.ContextConfig{Driver: drv})
	require.NoError(t, err)
	dev, err := gpu.NewDevice(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		dev.Destroy()
		ctx.Destroy()
	})
	return dev
}

func ext(w, h uint32) driver.Extent { return driver.Extent{Width: w, Height: h} }

func TestChooseFormat(t *testing.T) {
	unorm := driver.SurfaceFormat{Format: gputypes.TextureFormatBGRA8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear}
	srgbWrongSpace := driver.SurfaceFormat{Format: gputypes.TextureFormatBGRA8UnormSrgb, ColorSpace: driver.ColorSpaceDisplayP3}

	tests := []struct {
		name    string
		formats []driver.SurfaceFormat
		want    driver.SurfaceFormat
	}{
		{"preferred present", []driver.SurfaceFormat{unorm, swapchain.PreferredFormat}, swapchain.PreferredFormat},
		{"first otherwise", []driver.SurfaceFormat{unorm, srgbWrongSpace}, unorm},
		{"color space must match", []driver.SurfaceFormat{srgbWrongSpace, unorm}, srgbWrongSpace},
		{"empty", nil, driver.SurfaceFormat{}},
	}
	for _, tt := range tests {
		if got := swapchain.ChooseFormat(tt.formats); got != tt.want {
			t.Errorf("%s: ChooseFormat() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		modes []gputypes.PresentMode
		want  gputypes.PresentMode
	}{
		{[]gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeMailbox}, gputypes.PresentModeMailbox},
		{[]gputypes.PresentMode{gputypes.PresentModeImmediate, gputypes.PresentModeFifo}, gputypes.PresentModeFifo},
		{nil, gputypes.PresentModeFifo},
	}
	for _, tt := range tests {
		if got := swapchain.ChoosePresentMode(tt.modes); got != tt.want {
			t.Errorf("ChoosePresentMode(%v) = %v, want %v", tt.modes, got, tt.want)
		}
	}
}

func TestChooseImageCountWithinBounds(t *testing.T) {
	for minImages := uint32(1); minImages <= 4; minImages++ {
		for maxImages := uint32(0); maxImages <= 6; maxImages++ {
			if maxImages != 0 && maxImages < minImages {
				continue
			}
			caps := driver.SurfaceCaps{MinImages: minImages, MaxImages: maxImages}
			got := swapchain.ChooseImageCount(caps)
			if got < minImages || (maxImages > 0 && got > maxImages) {
				t.Errorf("ChooseImageCount(min=%d, max=%d) = %d, out of bounds", minImages, maxImages, got)
			}
			if maxImages == 0 && got != minImages+1 {
				t.Errorf("ChooseImageCount(min=%d, unbounded) = %d, want %d", minImages, got, minImages+1)
			}
		}
	}
}

func TestChooseExtent(t *testing.T) {
	free := driver.SurfaceCaps{
		Current:   driver.UndefinedExtent,
		MinExtent: ext(16, 16),
		MaxExtent: ext(1024, 768),
	}
	pinned := free
	pinned.Current = ext(800, 600)

	tests := []struct {
		name string
		caps driver.SurfaceCaps
		want driver.Extent
		exp  driver.Extent
	}{
		{"pinned ignores request", pinned, ext(1, 1), ext(800, 600)},
		{"within range", free, ext(640, 480), ext(640, 480)},
		{"clamped up", free, ext(4, 8), ext(16, 16)},
		{"clamped down", free, ext(4000, 3000), ext(1024, 768)},
		{"zero stays zero", free, ext(0, 480), driver.Extent{}},
	}
	for _, tt := range tests {
		if got := swapchain.ChooseExtent(tt.caps, tt.want); got != tt.exp {
			t.Errorf("%s: ChooseExtent() = %v, want %v", tt.name, got, tt.exp)
		}
	}
}

func TestNewNegotiates(t *testing.T) {
	drv := drivertest.New()
	dev := newDevice(t, drv)

	c, err := swapchain.New(dev, ext(1280, 720))
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, swapchain.PreferredFormat, c.Format())
	assert.Equal(t, gputypes.PresentModeMailbox, c.PresentMode())
	assert.Equal(t, ext(1280, 720), c.Extent())
	assert.Equal(t, 3, c.ImageCount())
	assert.Len(t, c.Views(), c.ImageCount())
	assert.Equal(t, driver.SharingExclusive, c.Sharing())

	desc := drv.LastSwapchain()
	assert.Equal(t, uint32(3), desc.ImageCount)
	assert.Empty(t, desc.Families)
}

func TestNewConcurrentSharingForSplitFamilies(t *testing.T) {
	a := drivertest.DefaultAdapter()
	a.Families = []driver.QueueFamily{{Index: 0, Graphics: true}, {Index: 1, Present: true}}
	drv := drivertest.New(a)
	dev := newDevice(t, drv)

	c, err := swapchain.New(dev, ext(64, 64))
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, driver.SharingConcurrent, c.Sharing())
	assert.Equal(t, []int{0, 1}, drv.LastSwapchain().Families)
}

func TestNewZeroExtent(t *testing.T) {
	dev := newDevice(t, drivertest.New())
	_, err := swapchain.New(dev, ext(0, 0))
	if !errors.Is(err, swapchain.ErrZeroExtent) {
		t.Errorf("New(0x0) error = %v, want %v", err, swapchain.ErrZeroExtent)
	}
}

func TestRecreateIsIdempotent(t *testing.T) {
	drv := drivertest.New()
	dev := newDevice(t, drv)
	c, err := swapchain.New(dev, ext(800, 600))
	require.NoError(t, err)
	defer c.Destroy()

	type shape struct {
		format driver.SurfaceFormat
		extent driver.Extent
		count  int
	}
	var shapes []shape
	for i := 0; i < 2; i++ {
		require.NoError(t, dev.WaitIdle())
		require.NoError(t, c.Recreate(ext(1024, 512)))
		shapes = append(shapes, shape{c.Format(), c.Extent(), c.ImageCount()})
		assert.Len(t, c.Views(), c.ImageCount())
	}
	assert.Equal(t, shapes[0], shapes[1])
	assert.Equal(t, ext(1024, 512), shapes[0].extent)
	assert.Equal(t, 3, drv.Stats().Swapchains)
}

func TestRecreateZeroLeavesChainUntouched(t *testing.T) {
	dev := newDevice(t, drivertest.New())
	c, err := swapchain.New(dev, ext(320, 240))
	require.NoError(t, err)
	defer c.Destroy()
	before := c.Handle()

	err = c.Recreate(ext(320, 0))
	require.ErrorIs(t, err, swapchain.ErrZeroExtent)
	assert.Same(t, before, c.Handle())
	assert.Equal(t, ext(320, 240), c.Extent())
}

func TestRecreateFollowsNewCaps(t *testing.T) {
	drv := drivertest.New()
	dev := newDevice(t, drv)
	c, err := swapchain.New(dev, ext(320, 240))
	require.NoError(t, err)
	defer c.Destroy()

	caps := drivertest.DefaultAdapter().Surface.Caps
	caps.MinImages, caps.MaxImages = 3, 4
	caps.Current = ext(500, 400)
	drv.SetSurfaceCaps(0, caps)

	require.NoError(t, c.Recreate(ext(320, 240)))
	assert.Equal(t, 4, c.ImageCount())
	assert.Equal(t, ext(500, 400), c.Extent())
}

func TestDestroyTwice(t *testing.T) {
	drv := drivertest.New()
	dev := newDevice(t, drv)
	c, err := swapchain.New(dev, ext(8, 8))
	require.NoError(t, err)

	c.Destroy()
	c.Destroy()
	assert.Nil(t, c.Handle())
	assert.Empty(t, drv.Stats().Violations)
}
