// Package input tracks keyboard state for the game loop.
//
// Keys are gpucontext.Key values delivered through a
// gpucontext.EventSource. Game actions (move, jump) are bound to keys by a
// Bindings table, and each action reports whether it is held as well as
// its press and release edges for the current frame.
package input

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
)

// ErrUnknownKey is returned by ParseKey for an unrecognized key name.
var ErrUnknownKey = errors.New("input: unknown key")

// Action is a game action bound to a key.
type Action int

const (
	Forward Action = iota
	Back
	Left
	Right
	Jump

	numActions
)

var actionNames = [numActions]string{"forward", "back", "left", "right", "jump"}

func (a Action) String() string {
	if a >= 0 && a < numActions {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Actions returns every action in order.
func Actions() []Action {
	return []Action{Forward, Back, Left, Right, Jump}
}

// Bindings maps each action to a key.
type Bindings [numActions]gpucontext.Key

// DefaultBindings returns WASD movement and Space to jump.
func DefaultBindings() Bindings {
	return Bindings{
		Forward: gpucontext.KeyW,
		Back:    gpucontext.KeyS,
		Left:    gpucontext.KeyA,
		Right:   gpucontext.KeyD,
		Jump:    gpucontext.KeySpace,
	}
}

var keyNames = func() map[string]gpucontext.Key {
	m := map[string]gpucontext.Key{
		"space":     gpucontext.KeySpace,
		"escape":    gpucontext.KeyEscape,
		"enter":     gpucontext.KeyEnter,
		"tab":       gpucontext.KeyTab,
		"backspace": gpucontext.KeyBackspace,
		"up":        gpucontext.KeyUp,
		"down":      gpucontext.KeyDown,
		"left":      gpucontext.KeyLeft,
		"right":     gpucontext.KeyRight,
		"lshift":    gpucontext.KeyLeftShift,
		"rshift":    gpucontext.KeyRightShift,
		"lctrl":     gpucontext.KeyLeftControl,
		"rctrl":     gpucontext.KeyRightControl,
		"lalt":      gpucontext.KeyLeftAlt,
		"ralt":      gpucontext.KeyRightAlt,
	}
	for i := range 26 {
		m[string(rune('a'+i))] = gpucontext.KeyA + gpucontext.Key(i)
	}
	for i := range 10 {
		m[string(rune('0'+i))] = gpucontext.Key0 + gpucontext.Key(i)
	}
	for i := range 12 {
		m[fmt.Sprintf("f%d", i+1)] = gpucontext.KeyF1 + gpucontext.Key(i)
	}
	return m
}()

// ParseKey returns the key named name. Names are case-insensitive: letters
// ("W"), digits ("1"), function keys ("F5") and the named keys "Space",
// "Escape", "Enter", "Tab", "Backspace", "Up", "Down", "Left", "Right",
// "LShift", "RShift", "LCtrl", "RCtrl", "LAlt" and "RAlt".
func ParseKey(name string) (gpucontext.Key, error) {
	if k, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return gpucontext.KeyUnknown, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// keyCount bounds the key codes tracked by State.
const keyCount = int(gpucontext.KeyPause) + 1

// State is the keyboard state of one frame. It is not safe for concurrent
// use; events are delivered on the goroutine that polls the window.
type State struct {
	bindings Bindings
	down     [keyCount]bool
	pressed  [keyCount]bool
	released [keyCount]bool
}

// New returns a State using b.
func New(b Bindings) *State {
	return &State{bindings: b}
}

// Bindings returns the action bindings.
func (s *State) Bindings() Bindings { return s.bindings }

// Attach subscribes s to key events from src.
func (s *State) Attach(src gpucontext.EventSource) {
	src.OnKeyPress(func(k gpucontext.Key, _ gpucontext.Modifiers) { s.Press(k) })
	src.OnKeyRelease(func(k gpucontext.Key, _ gpucontext.Modifiers) { s.Release(k) })
}

// Press records k going down. Repeats of a held key are not new presses.
func (s *State) Press(k gpucontext.Key) {
	if int(k) >= keyCount || s.down[k] {
		return
	}
	s.down[k] = true
	s.pressed[k] = true
}

// Release records k going up.
func (s *State) Release(k gpucontext.Key) {
	if int(k) >= keyCount || !s.down[k] {
		return
	}
	s.down[k] = false
	s.released[k] = true
}

// KeyDown reports whether k is held.
func (s *State) KeyDown(k gpucontext.Key) bool {
	return int(k) < keyCount && s.down[k]
}

func (s *State) key(a Action) (gpucontext.Key, bool) {
	if a < 0 || a >= numActions {
		return 0, false
	}
	k := s.bindings[a]
	return k, k != gpucontext.KeyUnknown && int(k) < keyCount
}

// Down reports whether the key bound to a is held.
func (s *State) Down(a Action) bool {
	k, ok := s.key(a)
	return ok && s.down[k]
}

// Pressed reports whether the key bound to a went down this frame.
func (s *State) Pressed(a Action) bool {
	k, ok := s.key(a)
	return ok && s.pressed[k]
}

// Released reports whether the key bound to a went up this frame.
func (s *State) Released(a Action) bool {
	k, ok := s.key(a)
	return ok && s.released[k]
}

// Axis returns the movement direction from the held keys: x is right
// minus left, z is forward minus back.
func (s *State) Axis() (x, z float32) {
	if s.Down(Right) {
		x++
	}
	if s.Down(Left) {
		x--
	}
	if s.Down(Forward) {
		z++
	}
	if s.Down(Back) {
		z--
	}
	return x, z
}

// EndFrame clears the press and release edges. Held keys stay held.
func (s *State) EndFrame() {
	clear(s.pressed[:])
	clear(s.released[:])
}
