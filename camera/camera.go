// Package camera builds view and projection transforms.
//
// Matrices are mgl32.Mat4 (column-major, acting on column vectors). View
// space is right-handed; projections map view depth to [0, 1].
package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ClipCorrection maps OpenGL clip space, with depth in [-1, 1], onto
// depth in [0, 1]. flipY negates y for APIs whose framebuffer y axis
// points down.
func ClipCorrection(flipY bool) mgl32.Mat4 {
	sy := float32(1)
	if flipY {
		sy = -1
	}
	return mgl32.Mat4{
		1, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, 0.5, 0,
		0, 0, 0.5, 1,
	}
}

// Perspective returns a right-handed projection with vertical field of
// view fovY radians. View depth near maps to 0 and far to 1.
func Perspective(fovY, aspect, near, far float32, flipY bool) mgl32.Mat4 {
	return ClipCorrection(flipY).Mul4(mgl32.Perspective(fovY, aspect, near, far))
}

// Orbit is a camera circling Target at a fixed radius and height.
type Orbit struct {
	Target mgl32.Vec3
	Radius float32
	Height float32

	// Angle is the current position on the circle, in radians.
	Angle float32

	// Speed is the angular velocity in radians per second.
	Speed float32

	FovY      float32
	Near, Far float32
	FlipY     bool
}

// Update advances the orbit by dt seconds. Angle stays in [0, 2π).
func (o *Orbit) Update(dt float32) {
	o.Angle = math32.Mod(o.Angle+o.Speed*dt, 2*math32.Pi)
	if o.Angle < 0 {
		o.Angle += 2 * math32.Pi
	}
}

// Eye returns the camera position.
func (o *Orbit) Eye() mgl32.Vec3 {
	s, c := math32.Sincos(o.Angle)
	return o.Target.Add(mgl32.Vec3{o.Radius * c, o.Height, o.Radius * s})
}

// Forward returns the unit direction the camera looks along, projected
// onto the ground plane.
func (o *Orbit) Forward() mgl32.Vec3 {
	s, c := math32.Sincos(o.Angle)
	return mgl32.Vec3{-c, 0, -s}
}

// Right returns the ground-plane direction to the right of Forward.
func (o *Orbit) Right() mgl32.Vec3 {
	return o.Forward().Cross(mgl32.Vec3{0, 1, 0})
}

// View returns the view matrix.
func (o *Orbit) View() mgl32.Mat4 {
	return mgl32.LookAtV(o.Eye(), o.Target, mgl32.Vec3{0, 1, 0})
}

// ViewProj returns projection·view for a framebuffer of the given aspect
// ratio.
func (o *Orbit) ViewProj(aspect float32) mgl32.Mat4 {
	return Perspective(o.FovY, aspect, o.Near, o.Far, o.FlipY).Mul4(o.View())
}
