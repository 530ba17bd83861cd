// Package notify raises best-effort desktop notifications. When no notifier
// command is available, or notifications are disabled, a no-op is used.
package notify

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const notifyTimeout = 15 * time.Second

type Notifier interface {
	Notify(title, message string) error
}

// New returns a desktop notifier for the current platform, or a no-op when
// disabled or unsupported.
func New(appName string, enabled bool) Notifier {
	if !enabled {
		return noop{}
	}
	cmd, _ := buildNotifyCommand(runtime.GOOS, appName, "", "")
	if cmd == "" {
		log.WithField("goos", runtime.GOOS).Debug("Desktop notifications unsupported")
		return noop{}
	}
	if _, err := exec.LookPath(cmd); err != nil {
		log.WithField("command", cmd).Debug("Desktop notifier not installed")
		return noop{}
	}
	return &Desktop{appName: appName, goos: runtime.GOOS, run: func(ctx context.Context, name string, args ...string) error {
		return exec.CommandContext(ctx, name, args...).Run()
	}}
}

type noop struct{}

func (noop) Notify(string, string) error { return nil }

type Desktop struct {
	appName string
	goos    string
	run     func(ctx context.Context, name string, args ...string) error
}

func buildNotifyCommand(goos, appName, title, message string) (string, []string) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name=" + appName, title, message}
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptQuote(message), appleScriptQuote(title))
		return "osascript", []string{"-e", script}
	case "windows":
		script := fmt.Sprintf(
			"Add-Type -AssemblyName System.Windows.Forms; $n=New-Object System.Windows.Forms.NotifyIcon; "+
				"$n.Icon=[System.Drawing.SystemIcons]::Information; $n.Visible=$true; "+
				"$n.ShowBalloonTip(10000, %s, %s, 'Info'); Start-Sleep -Seconds 5; $n.Dispose()",
			powerShellQuote(title), powerShellQuote(message),
		)
		return "powershell", []string{"-NoProfile", "-WindowStyle", "Hidden", "-Command", script}
	default:
		return "", nil
	}
}

func (d *Desktop) Notify(title, message string) error {
	cmd, args := buildNotifyCommand(d.goos, d.appName, title, message)
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.run(ctx, cmd, args...); err != nil {
		return fmt.Errorf("failed showing notification: %w", err)
	}
	return nil
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powerShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
