package mesh

// Cube returns a unit cube centered at the origin with a color per corner.
// Faces wind counter-clockwise seen from outside.
func Cube() Data {
	return Data{
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, -0.5}, Color: [3]float32{0, 0, 0}},
			{Position: [3]float32{0.5, -0.5, -0.5}, Color: [3]float32{1, 0, 0}},
			{Position: [3]float32{0.5, 0.5, -0.5}, Color: [3]float32{1, 1, 0}},
			{Position: [3]float32{-0.5, 0.5, -0.5}, Color: [3]float32{0, 1, 0}},
			{Position: [3]float32{-0.5, -0.5, 0.5}, Color: [3]float32{0, 0, 1}},
			{Position: [3]float32{0.5, -0.5, 0.5}, Color: [3]float32{1, 0, 1}},
			{Position: [3]float32{0.5, 0.5, 0.5}, Color: [3]float32{1, 1, 1}},
			{Position: [3]float32{-0.5, 0.5, 0.5}, Color: [3]float32{0, 1, 1}},
		},
		Indices: []uint32{
			4, 5, 6, 6, 7, 4, // +z
			1, 0, 3, 3, 2, 1, // -z
			0, 4, 7, 7, 3, 0, // -x
			5, 1, 2, 2, 6, 5, // +x
			7, 6, 2, 2, 3, 7, // +y
			0, 1, 5, 5, 4, 0, // -y
		},
	}
}

// Plane returns a square in the y=0 plane with the given edge length,
// facing +y.
func Plane(size float32, color [3]float32) Data {
	h := size / 2
	return Data{
		Vertices: []Vertex{
			{Position: [3]float32{-h, 0, -h}, Color: color},
			{Position: [3]float32{h, 0, -h}, Color: color},
			{Position: [3]float32{h, 0, h}, Color: color},
			{Position: [3]float32{-h, 0, h}, Color: color},
		},
		Indices: []uint32{3, 2, 1, 1, 0, 3},
	}
}
