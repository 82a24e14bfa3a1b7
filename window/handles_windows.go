//go:build windows

package window

import "unsafe"

// NativeHandles returns the HWND. Win32 surfaces need no display handle.
func (w *Window) NativeHandles() (display, window uintptr, err error) {
	return 0, uintptr(unsafe.Pointer(w.win.GetWin32Window())), nil
}
