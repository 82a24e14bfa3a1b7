// Command engine-demo renders a cube on a floor with an orbiting camera.
// WASD moves the cube, Space jumps and Escape quits.
//
// Usage:
//
//	engine-demo [options]
//
// Examples:
//
//	engine-demo                          # Built-in configuration and shaders
//	engine-demo -config engine.toml      # Load a TOML configuration
//	engine-demo -print-config            # Print the default configuration
//	engine-demo -shaders ./spv           # Use shaders built by engine-shaderc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/gogpu/engine"
	"github.com/gogpu/engine/config"
	"github.com/gogpu/engine/internal/arena"
	"github.com/gogpu/engine/shader"
	"github.com/gogpu/engine/window"

	// Registers the HAL driver.
	_ "github.com/gogpu/engine/driver/haldrv"
)

var (
	configPath  = flag.String("config", "", "TOML configuration file")
	printConfig = flag.Bool("print-config", false, "print the effective configuration and exit")
	shaderDir   = flag.String("shaders", "", "directory with one .vert.spv and one .frag.spv")
	vsEntry     = flag.String("vs", "vs_main", "vertex entry point of -shaders")
	fsEntry     = flag.String("fs", "fs_main", "fragment entry point of -shaders")
	verbose     = flag.Bool("v", false, "debug logging")
)

func init() {
	// GLFW and the presentation surface belong to the main thread.
	runtime.LockOSThread()
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "engine-demo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *printConfig {
		return config.Write(os.Stdout, cfg)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	engine.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts, err := engine.ConfigOptions(cfg)
	if err != nil {
		return err
	}
	if *shaderDir != "" {
		s, err := shader.Load(*shaderDir)
		if err != nil {
			return err
		}
		s.Vertex.Entry, s.Fragment.Entry = *vsEntry, *fsEntry
		opts = append(opts, engine.WithShaders(s))
	}

	win, err := window.Open(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title)
	if err != nil {
		return err
	}
	defer win.Close()

	e, err := engine.New(win, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			engine.Logger().Warn("engine-demo: close", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = e.Run(ctx, arena.New(cfg))
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	engine.Logger().Info("engine-demo: done", "stats", e.Stats().String())
	return err
}
