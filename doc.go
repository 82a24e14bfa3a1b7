// Package engine is the core of a real-time 3D renderer built on the
// GoGPU stack.
//
// # Overview
//
// The engine opens a graphics device for a desktop window, keeps a
// presentation chain sized to the window and renders a list of meshes
// every frame with a single depth-tested pipeline. Several frames may be
// in flight at once; the CPU never overwrites resources the GPU is still
// reading.
//
// # Quick Start
//
//	win, err := window.Open(1280, 720, "demo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer win.Close()
//
//	e, err := engine.New(win)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	// game implements engine.Game.
//	if err := e.Run(ctx, game); err != nil {
//	    log.Fatal(err)
//	}
//
// # Architecture
//
// The engine is organized into:
//   - gpu: graphics context and logical device
//   - swapchain: presentation chain and its image views
//   - frame: per-slot semaphores and fences, image ownership
//   - resource: buffers, depth images, staging uploads
//   - mesh: vertex and index data on the device
//   - render: the frame state machine
//   - driver: the device interface, with haldrv (gogpu/wgpu HAL) and
//     drivertest (in-memory, for tests) implementations
//
// # Frame Loop
//
// Each frame waits for its slot, acquires a chain image, waits for any
// earlier frame still using that image, writes the frame globals, records
// and submits the draw list and presents. When the chain is out of date
// the engine waits for the device to go idle, recreates the chain at the
// window's size and rebuilds everything that depends on it. Frames are
// skipped while the window is minimized.
//
// # Coordinate System
//
// Right-handed world space, y up. Clip-space depth runs from 0 at the near
// plane to 1 at the far plane. Matrices act on column vectors.
package engine

// Version information
const (
	// Version is the current version of the engine
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
