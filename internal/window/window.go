// Package window controls the front end's top-level window. The native path
// drives the desktop's window manager by exact title; the launcher reopens
// the UI URL when no native control is available.
package window

import (
	"context"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("window control unavailable")

const commandTimeout = 3 * time.Second

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Native manipulates a window found by exact title: through user32 on
// Windows, through wmctrl elsewhere.
type Native struct {
	goos     string
	run      runFunc
	lookPath func(string) (string, error)
	// direct handles actions in-process when the platform allows it.
	direct func(action, title string) error
}

func NewNative() *Native {
	return &Native{goos: runtime.GOOS, run: runCommand, lookPath: exec.LookPath, direct: directControl}
}

func buildWindowCommand(goos, action, title string) (string, []string) {
	if goos != "linux" {
		return "", nil
	}
	switch action {
	case "activate":
		return "wmctrl", []string{"-F", "-a", title}
	case "minimize":
		return "wmctrl", []string{"-F", "-r", title, "-b", "add,hidden"}
	case "close":
		// wmctrl cannot unmap a window; hiding keeps the UI alive like minimize.
		return "wmctrl", []string{"-F", "-r", title, "-b", "add,hidden"}
	default:
		return "", nil
	}
}

func (n *Native) do(action, title string) error {
	if n.direct != nil {
		return n.direct(action, title)
	}
	cmd, args := buildWindowCommand(n.goos, action, title)
	if cmd == "" {
		return fmt.Errorf("%w: no native %s on %s", ErrUnavailable, action, n.goos)
	}
	if _, err := n.lookPath(cmd); err != nil {
		return fmt.Errorf("%w: %s not installed", ErrUnavailable, cmd)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if out, err := n.run(ctx, cmd, args...); err != nil {
		return fmt.Errorf("%s %q: %w (%s)", action, title, err, bytesTrim(out))
	}
	return nil
}

// Activate restores the window titled title and raises it.
func (n *Native) Activate(title string) error {
	return n.do("activate", title)
}

func (n *Native) Minimize(title string) error {
	return n.do("minimize", title)
}

func (n *Native) Close(title string) error {
	return n.do("close", title)
}

// Launcher opens the UI URL with the desktop's default handler.
type Launcher struct {
	goos string
	run  runFunc
}

func NewLauncher() *Launcher {
	return &Launcher{goos: runtime.GOOS, run: runCommand}
}

func buildOpenCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}
	default:
		return "", nil
	}
}

func (l *Launcher) Open(url string) error {
	cmd, args := buildOpenCommand(l.goos, url)
	if cmd == "" {
		return fmt.Errorf("%w: no launcher on %s", ErrUnavailable, l.goos)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if out, err := l.run(ctx, cmd, args...); err != nil {
		return fmt.Errorf("open %s: %w (%s)", url, err, bytesTrim(out))
	}
	return nil
}

type NativeWindow interface {
	Activate(title string) error
	Minimize(title string) error
	Close(title string) error
}

type URLOpener interface {
	Open(url string) error
}

// Controller implements the window operations of the control plane. Each
// operation prefers the native path and falls back as documented on it.
type Controller struct {
	title  string
	url    string
	native NativeWindow
	shell  URLOpener
}

func NewController(title, url string, native NativeWindow, shell URLOpener) *Controller {
	return &Controller{title: title, url: url, native: native, shell: shell}
}

// Minimize minimizes the window, hiding it when it cannot be minimized.
func (c *Controller) Minimize() error {
	return c.first("minimize", c.nativeMinimize, c.nativeClose)
}

// Close hides the UI window. The agent keeps running.
func (c *Controller) Close() error {
	return c.first("close", c.nativeClose, c.nativeMinimize)
}

// Show restores and raises the window, reopening the UI when no window can
// be found.
func (c *Controller) Show() error {
	return c.first("show", c.nativeActivate, c.openShell)
}

func (c *Controller) first(action string, attempts ...func() error) error {
	var errs []error
	for _, attempt := range attempts {
		err := attempt()
		if err == nil {
			return nil
		}
		log.WithFields(log.Fields{"action": action, "error": err}).Debug("Window control attempt failed")
		errs = append(errs, err)
	}
	return fmt.Errorf("%s window: %w", action, errors.Join(errs...))
}

func (c *Controller) nativeActivate() error {
	if c.native == nil {
		return ErrUnavailable
	}
	return c.native.Activate(c.title)
}

func (c *Controller) nativeMinimize() error {
	if c.native == nil {
		return ErrUnavailable
	}
	return c.native.Minimize(c.title)
}

func (c *Controller) nativeClose() error {
	if c.native == nil {
		return ErrUnavailable
	}
	return c.native.Close(c.title)
}

func (c *Controller) openShell() error {
	if c.shell == nil || c.url == "" {
		return ErrUnavailable
	}
	return c.shell.Open(c.url)
}

func bytesTrim(out []byte) string {
	const limit = 200
	if len(out) > limit {
		out = out[:limit]
	}
	return strings.TrimSpace(string(out))
}
