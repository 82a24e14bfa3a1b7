// Package config loads the engine's TOML configuration.
//
// A file only needs the keys it changes: decoding starts from Default.
// Unknown keys are rejected so a typo does not silently fall back to a
// default, and Validate checks every value before the engine starts.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/engine/input"
)

// ErrInvalid is wrapped by every error Validate reports.
var ErrInvalid = errors.New("config: invalid")

// MaxFramesInFlight bounds Renderer.FramesInFlight.
const MaxFramesInFlight = 8

// Config is the complete engine configuration.
type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Camera   Camera   `toml:"camera"`
	Controls Controls `toml:"controls"`
	Game     Game     `toml:"game"`
	Graphics Graphics `toml:"graphics"`
}

// Window configures the desktop window.
type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

// Renderer configures the device and frame loop.
type Renderer struct {
	FramesInFlight int  `toml:"frames_in_flight"`
	Validation     bool `toml:"validation"`

	// Backend names a registered driver; empty selects the default.
	Backend      string   `toml:"backend"`
	FenceTimeout Duration `toml:"fence_timeout"`
}

// Camera configures the orbit camera.
type Camera struct {
	FovDeg        float32 `toml:"fov_deg"`
	Near          float32 `toml:"near"`
	Far           float32 `toml:"far"`
	OrbitRadius   float32 `toml:"orbit_radius"`
	OrbitHeight   float32 `toml:"orbit_height"`
	OrbitSpeedDeg float32 `toml:"orbit_speed_deg"`
	FlipY         bool    `toml:"flip_y"`
}

// Controls configures movement and key bindings. Keys use input.ParseKey
// names.
type Controls struct {
	MoveSpeed float32 `toml:"move_speed"`
	Forward   string  `toml:"forward"`
	Back      string  `toml:"back"`
	Left      string  `toml:"left"`
	Right     string  `toml:"right"`
	Jump      string  `toml:"jump"`
}

// Game configures the demo scene.
type Game struct {
	ArenaSize float32 `toml:"arena_size"`
}

// Graphics configures output.
type Graphics struct {
	// ClearColor is linear RGBA in [0, 1].
	ClearColor [4]float64 `toml:"clear_color"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration time.Duration

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d with time.Duration.String.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Window: Window{Width: 1280, Height: 720, Title: "gogpu engine"},
		Renderer: Renderer{
			FramesInFlight: 2,
			FenceTimeout:   Duration(10 * time.Second),
		},
		Camera: Camera{
			FovDeg:        60,
			Near:          0.1,
			Far:           100,
			OrbitRadius:   6,
			OrbitHeight:   3,
			OrbitSpeedDeg: 20,
		},
		Controls: Controls{
			MoveSpeed: 3,
			Forward:   "W",
			Back:      "S",
			Left:      "A",
			Right:     "D",
			Jump:      "Space",
		},
		Game:     Game{ArenaSize: 10},
		Graphics: Graphics{ClearColor: [4]float64{0.05, 0.05, 0.08, 1}},
	}
}

// Parse decodes TOML from r over Default and validates the result.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("config: unknown keys:\n%s", strict.String())
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate reports every out-of-range value.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		bad("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if n := c.Renderer.FramesInFlight; n < 1 || n > MaxFramesInFlight {
		bad("renderer.frames_in_flight %d not in [1, %d]", n, MaxFramesInFlight)
	}
	if c.Renderer.FenceTimeout <= 0 {
		bad("renderer.fence_timeout %s must be positive", time.Duration(c.Renderer.FenceTimeout))
	}
	if f := c.Camera.FovDeg; f <= 0 || f >= 180 {
		bad("camera.fov_deg %v not in (0, 180)", f)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		bad("camera clip range [%v, %v] needs 0 < near < far", c.Camera.Near, c.Camera.Far)
	}
	if c.Camera.OrbitRadius <= 0 {
		bad("camera.orbit_radius %v must be positive", c.Camera.OrbitRadius)
	}
	if c.Controls.MoveSpeed < 0 {
		bad("controls.move_speed %v must not be negative", c.Controls.MoveSpeed)
	}
	if _, err := c.Controls.Bindings(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if c.Game.ArenaSize <= 0 {
		bad("game.arena_size %v must be positive", c.Game.ArenaSize)
	}
	for i, v := range c.Graphics.ClearColor {
		if v < 0 || v > 1 {
			bad("graphics.clear_color[%d] %v not in [0, 1]", i, v)
		}
	}
	return errors.Join(errs...)
}

// Bindings resolves the key names into input bindings.
func (c Controls) Bindings() (input.Bindings, error) {
	var b input.Bindings
	names := map[input.Action]string{
		input.Forward: c.Forward,
		input.Back:    c.Back,
		input.Left:    c.Left,
		input.Right:   c.Right,
		input.Jump:    c.Jump,
	}
	for _, a := range input.Actions() {
		k, err := input.ParseKey(names[a])
		if err != nil {
			return input.Bindings{}, fmt.Errorf("controls.%s: %w", a, err)
		}
		b[a] = k
	}
	return b, nil
}
