package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/engine/config"
	"github.com/gogpu/engine/input"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)

	b, err := cfg.Controls.Bindings()
	require.NoError(t, err)
	assert.Equal(t, input.DefaultBindings(), b)
}

func TestParseOverridesDefaults(t *testing.T) {
	const src = `
[window]
width = 800
title = "demo"

[renderer]
frames_in_flight = 3
fence_timeout = "250ms"

[controls]
jump = "LShift"

[graphics]
clear_color = [0.0, 0.5, 1.0, 1.0]
`
	cfg, err := config.Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 720, cfg.Window.Height, "unset key keeps default")
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, config.Duration(250*time.Millisecond), cfg.Renderer.FenceTimeout)
	assert.Equal(t, [4]float64{0, 0.5, 1, 1}, cfg.Graphics.ClearColor)

	b, err := cfg.Controls.Bindings()
	require.NoError(t, err)
	assert.Equal(t, gpucontext.KeyLeftShift, b[input.Jump])
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse(strings.NewReader("[window]\nwidht = 800\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widht")
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, src := range []string{
		"[window\nwidth = 1",
		"[renderer]\nfence_timeout = \"soon\"\n",
		"[window]\nwidth = \"wide\"\n",
	} {
		if _, err := config.Parse(strings.NewReader(src)); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", src)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"zero width", func(c *config.Config) { c.Window.Width = 0 }, "window size"},
		{"no frames in flight", func(c *config.Config) { c.Renderer.FramesInFlight = 0 }, "frames_in_flight"},
		{"too many frames", func(c *config.Config) { c.Renderer.FramesInFlight = config.MaxFramesInFlight + 1 }, "frames_in_flight"},
		{"zero timeout", func(c *config.Config) { c.Renderer.FenceTimeout = 0 }, "fence_timeout"},
		{"flat fov", func(c *config.Config) { c.Camera.FovDeg = 180 }, "fov_deg"},
		{"far before near", func(c *config.Config) { c.Camera.Far = 0.01 }, "clip range"},
		{"zero near", func(c *config.Config) { c.Camera.Near = 0 }, "clip range"},
		{"negative speed", func(c *config.Config) { c.Controls.MoveSpeed = -1 }, "move_speed"},
		{"unknown key", func(c *config.Config) { c.Controls.Forward = "Hyper" }, "controls.forward"},
		{"empty arena", func(c *config.Config) { c.Game.ArenaSize = 0 }, "arena_size"},
		{"clear color out of range", func(c *config.Config) { c.Graphics.ClearColor[3] = 2 }, "clear_color[3]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := config.Default()
	cfg.Window.Height = -1
	cfg.Game.ArenaSize = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window size")
	assert.Contains(t, err.Error(), "arena_size")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")

	var buf bytes.Buffer
	want := config.Default()
	want.Camera.FlipY = true
	require.NoError(t, config.Write(&buf, want))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = config.Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
