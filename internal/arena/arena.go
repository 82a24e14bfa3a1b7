// Package arena is the demo game: a cube the player walks around a floor
// plane and launches with a charged jump, followed by an orbiting camera.
//
// Movement is relative to the camera: forward walks away from it. Holding
// jump charges; releasing it on the ground launches the cube with an
// impulse split between up and the walking direction. In the air the cube
// keeps its launch velocity until it lands.
package arena

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/engine"
	"github.com/gogpu/engine/camera"
	"github.com/gogpu/engine/config"
	"github.com/gogpu/engine/input"
	"github.com/gogpu/engine/mesh"
	"github.com/gogpu/engine/render"
)

const (
	gravity   = 20
	spinSpeed = 1.2 // rad/s

	// Jump charge per second of holding, up to 1.
	chargeRate = 1.5

	// Launch speed is baseJump plus extraJump scaled by the charge.
	baseJump  = 6
	extraJump = 7

	// Launch direction weights; normalized so the speed is kept.
	upWeight      = 0.3
	forwardWeight = 0.7
)

var _ engine.Game = (*Arena)(nil)

// Arena implements engine.Game.
type Arena struct {
	cfg    config.Config
	orbit  camera.Orbit
	floor  mesh.ID
	player mesh.ID

	pos      mgl32.Vec3 // base of the cube
	vel      mgl32.Vec3
	airborne bool
	charge   float32
	spin     float32
}

// New returns an arena configured by the camera, controls and game
// sections of cfg.
func New(cfg config.Config) *Arena {
	c := cfg.Camera
	a := &Arena{
		cfg: cfg,
		orbit: camera.Orbit{
			Radius: c.OrbitRadius,
			Height: c.OrbitHeight,
			Speed:  mgl32.DegToRad(c.OrbitSpeedDeg),
			FovY:   mgl32.DegToRad(c.FovDeg),
			Near:   c.Near,
			Far:    c.Far,
			FlipY:  c.FlipY,
		},
	}
	a.follow()
	return a
}

// Load uploads the floor and the cube.
func (a *Arena) Load(e *engine.Engine) error {
	var err error
	if a.floor, err = e.UploadMesh(mesh.Plane(a.cfg.Game.ArenaSize, [3]float32{0.25, 0.3, 0.35})); err != nil {
		return err
	}
	a.player, err = e.UploadMesh(mesh.Cube())
	return err
}

// Update moves the camera and the cube by dt seconds.
func (a *Arena) Update(dt float32, in *input.State) {
	a.orbit.Update(dt)
	a.spin = math32.Mod(a.spin+spinSpeed*dt, 2*math32.Pi)

	if in.Down(input.Jump) {
		a.charge = min(a.charge+chargeRate*dt, 1)
	}

	dir := a.walkDir(in)
	if in.Released(input.Jump) {
		if !a.airborne {
			a.launch(dir)
		}
		a.charge = 0
	}

	if a.airborne {
		a.vel[1] -= gravity * dt
		a.pos = a.pos.Add(a.vel.Mul(dt))
		if a.pos[1] <= 0 {
			a.pos[1] = 0
			a.vel = mgl32.Vec3{}
			a.airborne = false
		}
	} else {
		a.pos = a.pos.Add(dir.Mul(a.cfg.Controls.MoveSpeed * dt))
	}

	half := a.cfg.Game.ArenaSize/2 - 0.5
	a.pos[0] = mgl32.Clamp(a.pos[0], -half, half)
	a.pos[2] = mgl32.Clamp(a.pos[2], -half, half)
	a.follow()
}

// walkDir returns the unit ground direction of the held movement keys,
// relative to the camera, or zero.
func (a *Arena) walkDir(in *input.State) mgl32.Vec3 {
	x, z := in.Axis()
	dir := a.orbit.Right().Mul(x).Add(a.orbit.Forward().Mul(z))
	if dir.LenSqr() == 0 {
		return dir
	}
	return dir.Normalize()
}

func (a *Arena) launch(dir mgl32.Vec3) {
	speed := baseJump + extraJump*a.charge
	norm := math32.Hypot(upWeight, forwardWeight)
	a.vel = dir.Mul(speed * forwardWeight / norm)
	a.vel[1] = speed * upWeight / norm
	a.airborne = true
}

// follow centers the camera on the cube.
func (a *Arena) follow() {
	a.orbit.Target = a.pos.Add(mgl32.Vec3{0, 0.5, 0})
}

// Render draws the floor and the cube.
func (a *Arena) Render(aspect float32) (render.FrameGlobals, []render.Item) {
	model := mgl32.Translate3D(a.pos[0], a.pos[1]+0.5, a.pos[2]).Mul4(mgl32.HomogRotate3DY(a.spin))
	return render.FrameGlobals{ViewProj: a.orbit.ViewProj(aspect)}, []render.Item{
		{Mesh: a.floor, Model: mgl32.Ident4()},
		{Mesh: a.player, Model: model},
	}
}

// Player returns the cube's position; y is its height above the floor.
func (a *Arena) Player() mgl32.Vec3 { return a.pos }

// Charge returns the jump charge in [0, 1].
func (a *Arena) Charge() float32 { return a.charge }

// Airborne reports whether the cube is in the air.
func (a *Arena) Airborne() bool { return a.airborne }

// Camera returns the orbit camera.
func (a *Arena) Camera() *camera.Orbit { return &a.orbit }
