//go:build darwin || (linux && wayland) || (freebsd && wayland) || (netbsd && wayland) || (openbsd && wayland)

package window

import (
	"errors"
	"runtime"
)

// NativeHandles reports that no surface handles are available on this
// platform.
func (w *Window) NativeHandles() (display, window uintptr, err error) {
	return 0, 0, errors.New("window: no native surface handles on " + runtime.GOOS)
}
