// Package window opens a GLFW desktop window for the engine.
//
// The window has no client graphics API; the engine creates its own
// presentation surface from the native handles. GLFW calls must come from
// the main thread, so lock it in the program's init and call Open,
// PollEvents and Close from main.
package window

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/gpucontext"
)

// Window is a GLFW window. It implements engine.Window and delivers key,
// resize and focus events as a gpucontext.EventSource. Escape requests
// close.
type Window struct {
	gpucontext.NullEventSource

	win       *glfw.Window
	resized   bool
	minimized bool

	keyPress   func(gpucontext.Key, gpucontext.Modifiers)
	keyRelease func(gpucontext.Key, gpucontext.Modifiers)
	resize     func(width, height int)
	focus      func(focused bool)
}

// Open initializes GLFW and creates a resizable window.
func Open(width, height int, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("window: init: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	gw, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window: create: %w", err)
	}

	w := &Window{win: gw}
	gw.SetKeyCallback(w.onKey)
	gw.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized = true
		if w.resize != nil {
			w.resize(width, height)
		}
	})
	gw.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		w.minimized = iconified
	})
	gw.SetFocusCallback(func(_ *glfw.Window, focused bool) {
		if w.focus != nil {
			w.focus(focused)
		}
	})
	return w, nil
}

func (w *Window) onKey(_ *glfw.Window, k glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
	key := translateKey(k)
	m := translateMods(mods)
	switch action {
	case glfw.Press, glfw.Repeat:
		if k == glfw.KeyEscape && action == glfw.Press {
			w.win.SetShouldClose(true)
		}
		if w.keyPress != nil {
			w.keyPress(key, m)
		}
	case glfw.Release:
		if w.keyRelease != nil {
			w.keyRelease(key, m)
		}
	}
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (width, height int) { return w.win.GetFramebufferSize() }

// TakeResized reports whether the framebuffer changed size since the last
// call.
func (w *Window) TakeResized() bool {
	r := w.resized
	w.resized = false
	return r
}

// Minimized reports whether the window is iconified.
func (w *Window) Minimized() bool { return w.minimized }

// ShouldClose reports whether the user asked to close the window.
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

// PollEvents processes pending events and runs the callbacks.
func (w *Window) PollEvents() { glfw.PollEvents() }

// Close destroys the window and terminates GLFW.
func (w *Window) Close() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	glfw.Terminate()
}

// OnKeyPress implements gpucontext.EventSource. Key repeats are delivered
// as presses.
func (w *Window) OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers)) { w.keyPress = fn }

// OnKeyRelease implements gpucontext.EventSource.
func (w *Window) OnKeyRelease(fn func(gpucontext.Key, gpucontext.Modifiers)) { w.keyRelease = fn }

// OnResize implements gpucontext.EventSource. Sizes are framebuffer pixels.
func (w *Window) OnResize(fn func(width, height int)) { w.resize = fn }

// OnFocus implements gpucontext.EventSource.
func (w *Window) OnFocus(fn func(focused bool)) { w.focus = fn }

var _ gpucontext.EventSource = (*Window)(nil)
