//go:build windows

package window

import (
	"fmt"
	"golang.org/x/sys/windows"
	"unsafe"
)

const (
	swHide     = 0
	swMinimize = 6
	swRestore  = 9
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW         = user32.NewProc("FindWindowW")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procBringWindowToTop    = user32.NewProc("BringWindowToTop")
)

var directControl = user32Control

func findWindow(title string) (uintptr, error) {
	name, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(name)))
	if hwnd == 0 {
		return 0, fmt.Errorf("%w: no window titled %q", ErrUnavailable, title)
	}
	return hwnd, nil
}

// user32Control finds the top-level window by exact title. Close hides the
// window instead of destroying it.
func user32Control(action, title string) error {
	if err := user32.Load(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	hwnd, err := findWindow(title)
	if err != nil {
		return err
	}
	switch action {
	case "activate":
		procShowWindow.Call(hwnd, swRestore)
		procSetForegroundWindow.Call(hwnd)
		procBringWindowToTop.Call(hwnd)
	case "minimize":
		procShowWindow.Call(hwnd, swMinimize)
	case "close":
		procShowWindow.Call(hwnd, swHide)
	default:
		return fmt.Errorf("%w: unknown action %s", ErrUnavailable, action)
	}
	return nil
}
