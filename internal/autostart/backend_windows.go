//go:build windows

package autostart

import (
	"errors"
	"golang.org/x/sys/windows/registry"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

// runKey stores entries as string values under the per-user Run key.
type runKey struct{}

func defaultBackend(string) (backend, error) {
	return runKey{}, nil
}

func (runKey) open(access uint32) (registry.Key, error) {
	return registry.OpenKey(registry.CURRENT_USER, runKeyPath, access)
}

func (r runKey) get(name string) (string, error) {
	key, err := r.open(registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer key.Close()
	value, _, err := key.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", ErrNoEntry
	}
	return value, err
}

func (r runKey) set(name, command string) error {
	key, err := r.open(registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer key.Close()
	return key.SetStringValue(name, command)
}

func (r runKey) remove(name string) error {
	key, err := r.open(registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer key.Close()
	if err := key.DeleteValue(name); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return ErrNoEntry
		}
		return err
	}
	return nil
}
