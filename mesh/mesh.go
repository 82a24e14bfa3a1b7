// Package mesh stores GPU-resident meshes behind opaque handles.
//
// A Store owns every mesh added to it. Handles are indexes that are never
// recycled; meshes live until DestroyAll, which must only be called with
// the device idle.
package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/engine/resource"
	"github.com/gogpu/gputypes"
)

// ErrUnknownMesh is returned by Get for a handle the store never issued.
var ErrUnknownMesh = errors.New("mesh: unknown mesh")

// ErrEmptyMesh is returned by Upload for data without vertices or indices.
var ErrEmptyMesh = errors.New("mesh: no vertices or indices")

// ErrNoBuffers is returned by Add for a nil mesh or one missing a vertex
// or index buffer.
var ErrNoBuffers = errors.New("mesh: mesh without buffers")

// ID is an opaque mesh handle.
type ID uint32

// Vertex is the vertex format consumed by the engine pipeline.
type Vertex struct {
	Position [3]float32
	Color    [3]float32
}

// VertexStride is the size of an encoded Vertex in bytes.
const VertexStride = 24

// IndexFormat is the format of mesh index buffers.
const IndexFormat = gputypes.IndexFormatUint32

// VertexLayout describes Vertex to a pipeline: position at location 0,
// color at location 1.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		},
	}
}

// Data is mesh source data in host memory.
type Data struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes encodes the vertices little-endian, VertexStride bytes each.
func (d Data) VertexBytes() []byte {
	out := make([]byte, 0, len(d.Vertices)*VertexStride)
	for _, v := range d.Vertices {
		for _, f := range v.Position {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		for _, f := range v.Color {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// IndexBytes encodes the indices as little-endian uint32.
func (d Data) IndexBytes() []byte {
	out := make([]byte, 0, len(d.Indices)*4)
	for _, i := range d.Indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

// Mesh is a vertex buffer, an index buffer and the number of indices.
type Mesh struct {
	Vertices   *resource.Buffer
	Indices    *resource.Buffer
	IndexCount uint32
}

// Store is an arena of meshes. It is not safe for concurrent use.
type Store struct {
	meshes []*Mesh
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Add takes ownership of m and returns its handle. m must have both
// buffers.
func (s *Store) Add(m *Mesh) (ID, error) {
	if m == nil || m.Vertices == nil || m.Indices == nil {
		return 0, ErrNoBuffers
	}
	s.meshes = append(s.meshes, m)
	return ID(len(s.meshes) - 1), nil
}

// Get returns the mesh for id.
func (s *Store) Get(id ID) (*Mesh, error) {
	if int(id) >= len(s.meshes) || s.meshes[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMesh, id)
	}
	return s.meshes[id], nil
}

// Len returns the number of meshes in the store.
func (s *Store) Len() int { return len(s.meshes) }

// Upload copies d into device-local vertex and index buffers and adds the
// resulting mesh.
func (s *Store) Upload(a *resource.Allocator, d Data) (ID, error) {
	if len(d.Vertices) == 0 || len(d.Indices) == 0 {
		return 0, ErrEmptyMesh
	}
	vb, err := a.UploadViaStaging(d.VertexBytes(), gputypes.BufferUsageVertex)
	if err != nil {
		return 0, fmt.Errorf("mesh: upload vertices: %w", err)
	}
	ib, err := a.UploadViaStaging(d.IndexBytes(), gputypes.BufferUsageIndex)
	if err != nil {
		vb.Destroy()
		return 0, fmt.Errorf("mesh: upload indices: %w", err)
	}
	return s.Add(&Mesh{Vertices: vb, Indices: ib, IndexCount: uint32(len(d.Indices))}) //nolint:gosec // index count fits uint32
}

// DestroyAll destroys every mesh. The device must be idle. Handles issued
// before remain unknown afterwards; new handles keep counting up.
func (s *Store) DestroyAll() {
	for i, m := range s.meshes {
		if m == nil {
			continue
		}
		m.Vertices.Destroy()
		m.Indices.Destroy()
		s.meshes[i] = nil
	}
}
