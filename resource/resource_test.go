package resource_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/driver/drivertest"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/resource"
	"github.com/gogpu/gputypes"
)

func newAllocator(t *testing.T, drv *drivertest.Driver) *resource.Allocator {
	t.Helper()
	ctx, err := gpu.NewContext(gpu.ContextConfig{Driver: drv})
	require.NoError(t, err)
	dev, err := gpu.NewDevice(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		dev.Destroy()
		ctx.Destroy()
	})
	return resource.New(dev)
}

func TestFindMemoryType(t *testing.T) {
	types := []driver.MemoryType{
		{Props: driver.MemoryDeviceLocal},
		{Props: driver.MemoryHostVisible | driver.MemoryHostCoherent},
		{Props: driver.MemoryDeviceLocal | driver.MemoryHostVisible | driver.MemoryHostCoherent},
	}
	tests := []struct {
		name     string
		typeBits uint32
		props    driver.MemoryProps
		want     int
		wantErr  bool
	}{
		{"first match wins", 0b111, driver.MemoryDeviceLocal, 0, false},
		{"mask excludes first", 0b110, driver.MemoryDeviceLocal, 2, false},
		{"superset matches", 0b111, driver.MemoryHostVisible, 1, false},
		{"all flags required", 0b011, driver.MemoryDeviceLocal | driver.MemoryHostVisible, 0, true},
		{"cached unavailable", 0b111, driver.MemoryHostCached, 0, true},
		{"empty mask", 0, driver.MemoryDeviceLocal, 0, true},
		{"no properties", 0b100, 0, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resource.FindMemoryType(types, tt.typeBits, tt.props)
			if tt.wantErr {
				if !errors.Is(err, resource.ErrNoMemoryType) {
					t.Errorf("FindMemoryType() error = %v, want %v", err, resource.ErrNoMemoryType)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("FindMemoryType() = %d, %v, want %d", got, err, tt.want)
			}
		})
	}
}

func TestCreateBufferRejectsZeroSize(t *testing.T) {
	a := newAllocator(t, drivertest.New())
	_, err := a.CreateBuffer(0, gputypes.BufferUsageVertex, driver.MemoryDeviceLocal)
	if !errors.Is(err, resource.ErrZeroSize) {
		t.Errorf("CreateBuffer(0) error = %v, want %v", err, resource.ErrZeroSize)
	}
}

func TestCreateBufferNoMemoryType(t *testing.T) {
	cfg := drivertest.DefaultAdapter()
	cfg.Memory = []driver.MemoryType{{Props: driver.MemoryDeviceLocal}}
	drv := drivertest.New(cfg)
	a := newAllocator(t, drv)

	live := drv.Stats().Live
	_, err := a.CreateBuffer(64, gputypes.BufferUsageUniform, driver.MemoryHostVisible)
	require.ErrorIs(t, err, resource.ErrNoMemoryType)
	assert.Equal(t, live, drv.Stats().Live, "failed creation leaked objects")
}

func TestMappedBufferRoundTrip(t *testing.T) {
	drv := drivertest.New()
	a := newAllocator(t, drv)

	b, err := a.CreateBuffer(16, gputypes.BufferUsageUniform, driver.MemoryHostVisible|driver.MemoryHostCoherent)
	require.NoError(t, err)
	defer b.Destroy()

	m, err := b.Map()
	require.NoError(t, err)
	require.Len(t, m, 16)
	copy(m, "0123456789abcdef")
	b.Unmap()
	assert.Equal(t, []byte("0123456789abcdef"), drivertest.Contents(b.Handle()))

	dl, err := a.CreateBuffer(16, gputypes.BufferUsageVertex, driver.MemoryDeviceLocal)
	require.NoError(t, err)
	defer dl.Destroy()
	_, err = dl.Map()
	assert.Error(t, err, "device-local memory is not mappable")
}

func TestUploadRoundTrip(t *testing.T) {
	for _, size := range []int{1, 3, 4, 255, 4096, 65537} {
		drv := drivertest.New()
		a := newAllocator(t, drv)

		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*7 + size)
		}
		b, err := a.UploadViaStaging(data, gputypes.BufferUsageVertex)
		require.NoError(t, err, "size %d", size)

		if got := drivertest.Contents(b.Handle()); !bytes.Equal(got, data) {
			t.Errorf("size %d: uploaded contents differ", size)
		}
		if b.Size() != int64(size) {
			t.Errorf("Size() = %d, want %d", b.Size(), size)
		}
		if b.Usage()&gputypes.BufferUsageCopyDst == 0 || b.Usage()&gputypes.BufferUsageVertex == 0 {
			t.Errorf("Usage() = %v, want vertex|copy-dst", b.Usage())
		}

		st := a.Stats()
		if st.Buffers != 1 || st.Uploads != 1 {
			t.Errorf("size %d: stats = %v, want staging released", size, st)
		}
		ds := drv.Stats()
		if ds.Submissions != 1 || ds.Pending != 0 {
			t.Errorf("size %d: %d submissions, %d pending", size, ds.Submissions, ds.Pending)
		}
		b.Destroy()
		b.Destroy()
		if got := a.Stats(); got.Buffers != 0 || got.Bytes != 0 {
			t.Errorf("after Destroy stats = %v", got)
		}
		assert.Empty(t, drv.Stats().Violations)
	}
}

func TestUploadEmptyPayload(t *testing.T) {
	drv := drivertest.New()
	a := newAllocator(t, drv)
	for _, data := range [][]byte{nil, {}} {
		_, err := a.UploadViaStaging(data, gputypes.BufferUsageIndex)
		if !errors.Is(err, resource.ErrEmptyPayload) {
			t.Errorf("UploadViaStaging(%v) error = %v, want %v", data, err, resource.ErrEmptyPayload)
		}
	}
	if s := drv.Stats().Submissions; s != 0 {
		t.Errorf("Submissions = %d, want 0", s)
	}
}

func TestUploadShortMapping(t *testing.T) {
	cfg := drivertest.DefaultAdapter()
	cfg.MapLimit = 8
	drv := drivertest.New(cfg)
	a := newAllocator(t, drv)

	_, err := a.UploadViaStaging(make([]byte, 16), gputypes.BufferUsageVertex)
	require.ErrorIs(t, err, resource.ErrSizeMismatch)
	assert.Equal(t, 0, a.Stats().Buffers, "staging buffer not released")
	assert.Equal(t, 0, a.Stats().Uploads)
	assert.Zero(t, drv.Stats().Submissions)

	// Payloads that fit the mapping still upload.
	b, err := a.UploadViaStaging(make([]byte, 8), gputypes.BufferUsageVertex)
	require.NoError(t, err)
	b.Destroy()
	assert.Empty(t, drv.Stats().Violations)
}

func TestCreateDepthImageMemoryFallback(t *testing.T) {
	tests := []struct {
		name     string
		memory   []driver.MemoryType
		typeBits uint32
		want     driver.MemoryProps
		wantErr  bool
	}{
		{
			name: "device local",
			want: driver.MemoryDeviceLocal,
		},
		{
			name:     "host visible fallback",
			typeBits: 1 << 1,
			want:     driver.MemoryHostVisible | driver.MemoryHostCoherent,
		},
		{
			name: "no acceptable type",
			memory: []driver.MemoryType{
				{Props: driver.MemoryDeviceLocal},
				{Props: driver.MemoryHostVisible | driver.MemoryHostCached},
			},
			typeBits: 1 << 1,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := drivertest.DefaultAdapter()
			if tt.memory != nil {
				cfg.Memory = tt.memory
			}
			cfg.ImageTypeBits = tt.typeBits
			a := newAllocator(t, drivertest.New(cfg))

			img, err := a.CreateDepthImage(gputypes.TextureFormatDepth32Float, driver.Extent{Width: 640, Height: 480})
			if tt.wantErr {
				require.ErrorIs(t, err, resource.ErrNoMemoryType)
				return
			}
			require.NoError(t, err)
			defer img.Destroy()

			assert.Equal(t, tt.want, img.MemoryProps())
			assert.Equal(t, gputypes.TextureFormatDepth32Float, img.Format())
			assert.NotNil(t, img.View())
			assert.Equal(t, 1, a.Stats().Images)
		})
	}
}

func TestStatsString(t *testing.T) {
	s := resource.Stats{Buffers: 2, Images: 1, Bytes: 4096, Uploads: 3}
	want := "Resources[2 buffers, 1 images, 4 KiB, 3 uploads]"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
