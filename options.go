package engine

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/engine/config"
	"github.com/gogpu/engine/driver"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/input"
	"github.com/gogpu/engine/render"
	"github.com/gogpu/engine/shader"
)

// Option configures an Engine during creation.
//
// Example:
//
//	e, err := engine.New(win,
//	    engine.WithFramesInFlight(3),
//	    engine.WithValidation(true))
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	appName        string
	driver         driver.Driver
	validation     bool
	fenceTimeout   time.Duration
	framesInFlight int
	shaders        *shader.Set
	clearColor     gputypes.Color
	bindings       input.Bindings
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		appName:        "gogpu engine",
		driver:         nil, // driver.Default
		fenceTimeout:   gpu.DefaultFenceTimeout,
		framesInFlight: render.DefaultFramesInFlight,
		shaders:        nil, // shader.Builtin
		clearColor:     render.DefaultClearColor,
		bindings:       input.DefaultBindings(),
	}
}

// WithAppName sets the application name reported to the driver.
func WithAppName(name string) Option {
	return func(o *options) {
		o.appName = name
	}
}

// WithDriver selects the driver explicitly. Without it the engine uses
// driver.Default.
//
// Example:
//
//	// Run headless on the HAL no-op backend:
//	e, err := engine.New(win, engine.WithDriver(haldrv.New(noop.API{})))
func WithDriver(d driver.Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

// WithValidation enables the driver's diagnostics layer.
func WithValidation(on bool) Option {
	return func(o *options) {
		o.validation = on
	}
}

// WithFenceTimeout bounds every fence wait. Non-positive values keep the
// default.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithFramesInFlight sets how many frames the CPU may record ahead of the
// GPU.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.framesInFlight = n
	}
}

// WithShaders replaces the built-in pipeline shaders.
func WithShaders(s shader.Set) Option {
	return func(o *options) {
		o.shaders = &s
	}
}

// WithClearColor sets the color the frame is cleared to.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithBindings sets the action key bindings.
func WithBindings(b input.Bindings) Option {
	return func(o *options) {
		o.bindings = b
	}
}

// ConfigOptions translates the renderer, controls and graphics sections
// of cfg into options. A named backend must be registered with the driver
// package.
func ConfigOptions(cfg config.Config) ([]Option, error) {
	b, err := cfg.Controls.Bindings()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	c := cfg.Graphics.ClearColor
	opts := []Option{
		WithAppName(cfg.Window.Title),
		WithValidation(cfg.Renderer.Validation),
		WithFenceTimeout(time.Duration(cfg.Renderer.FenceTimeout)),
		WithFramesInFlight(cfg.Renderer.FramesInFlight),
		WithClearColor(gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]}),
		WithBindings(b),
	}
	if cfg.Renderer.Backend != "" {
		d, err := driver.Get(cfg.Renderer.Backend)
		if err != nil {
			return nil, fmt.Errorf("engine: backend %q: %w", cfg.Renderer.Backend, err)
		}
		opts = append(opts, WithDriver(d))
	}
	return opts, nil
}
