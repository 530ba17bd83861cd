package autostart

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// desktopFiles stores entries as XDG autostart desktop files.
type desktopFiles struct {
	dir string
}

func (d *desktopFiles) path(name string) string {
	return filepath.Join(d.dir, name+".desktop")
}

func (d *desktopFiles) get(name string) (string, error) {
	b, err := os.ReadFile(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoEntry
	}
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		if exec, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "Exec="); ok {
			return exec, nil
		}
	}
	return "", fmt.Errorf("desktop file %s has no Exec line", d.path(name))
}

func (d *desktopFiles) set(name, command string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	content := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=" + name,
		"Exec=" + command,
		"X-GNOME-Autostart-enabled=true",
		"",
	}, "\n")
	tmp := d.path(name) + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path(name))
}

func (d *desktopFiles) remove(name string) error {
	err := os.Remove(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoEntry
	}
	return err
}
