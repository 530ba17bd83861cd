//go:build !windows

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
)

func defaultBackend(string) (backend, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed resolving autostart directory: %w", err)
	}
	return &desktopFiles{dir: filepath.Join(dir, "autostart")}, nil
}
