package homework

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const pickerTitle = "Select homework file"

// pickFunc runs a picker command and returns its trimmed output. A dismissed
// dialog yields "" and no error.
type pickFunc func(ctx context.Context, name string, args ...string) (string, error)

func runPicker(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func buildPickCommand(goos, initialDir string) (string, []string) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		args := []string{
			"--file-selection",
			"--title=" + pickerTitle,
			"--file-filter=Homework | *.txt *.md *.ppt *.pptx",
			"--file-filter=All files | *",
		}
		if initialDir != "" {
			args = append(args, "--filename="+strings.TrimSuffix(initialDir, "/")+"/")
		}
		return "zenity", args
	case "darwin":
		script := fmt.Sprintf(`POSIX path of (choose file with prompt "%s")`, pickerTitle)
		if initialDir != "" {
			script = fmt.Sprintf(`POSIX path of (choose file with prompt "%s" default location POSIX file "%s")`,
				pickerTitle, strings.ReplaceAll(initialDir, `"`, `\"`))
		}
		return "osascript", []string{"-e", script}
	case "windows":
		script := "Add-Type -AssemblyName System.Windows.Forms; " +
			"$d=New-Object System.Windows.Forms.OpenFileDialog; " +
			"$d.Title='" + pickerTitle + "'; " +
			"$d.Filter='Homework (*.txt;*.md;*.ppt;*.pptx)|*.txt;*.md;*.ppt;*.pptx|All files (*.*)|*.*'; "
		if initialDir != "" {
			script += "$d.InitialDirectory='" + strings.ReplaceAll(initialDir, "'", "''") + "'; "
		}
		script += "if ($d.ShowDialog() -eq 'OK') { $d.FileName }"
		return "powershell", []string{"-NoProfile", "-STA", "-Command", script}
	default:
		return "", nil
	}
}
