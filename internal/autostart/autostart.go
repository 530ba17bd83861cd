// Package autostart registers the UI for launch at login: a value under the
// per-user Run key on Windows, an XDG autostart desktop file elsewhere.
package autostart

import (
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/model"
	"os"
)

// DefaultEntryName names the registry value / desktop file of the UI entry.
const DefaultEntryName = "AutoHomework_UI"

// ErrNoEntry is returned by a backend when the entry does not exist.
var ErrNoEntry = errors.New("autostart entry not found")

type backend interface {
	get(name string) (string, error)
	set(name, command string) error
	remove(name string) error
}

type Manager struct {
	entryName string
	command   string
	backend   backend
}

// New returns a Manager for the platform's autostart mechanism. command is
// the full launch command line stored in the entry.
func New(entryName, command string) (*Manager, error) {
	b, err := defaultBackend(entryName)
	if err != nil {
		return nil, err
	}
	return newManager(entryName, command, b), nil
}

// NewDesktopFileManager keeps XDG desktop files in dir.
func NewDesktopFileManager(dir, entryName, command string) *Manager {
	return newManager(entryName, command, &desktopFiles{dir: dir})
}

func newManager(entryName, command string, b backend) *Manager {
	if entryName == "" {
		entryName = DefaultEntryName
	}
	return &Manager{entryName: entryName, command: command, backend: b}
}

// UICommand is the command line that starts this executable in UI mode.
func UICommand() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed resolving executable: %w", err)
	}
	return `"` + exe + `" --ui`, nil
}

func (m *Manager) enabled() (string, bool, error) {
	command, err := m.backend.get(m.entryName)
	if errors.Is(err, ErrNoEntry) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return command, true, nil
}

func (m *Manager) Status() (model.AutostartStatus, error) {
	command, ok, err := m.enabled()
	if err != nil {
		return model.AutostartStatus{}, fmt.Errorf("failed reading autostart entry: %w", err)
	}
	return model.AutostartStatus{UIAutostart: ok, UIPath: command}, nil
}

// Apply brings the UI entry in line with patch.AutoStartUI (true when
// unset). The entry is only touched when its state differs.
func (m *Manager) Apply(patch model.ConfigPatch) (model.AutostartResult, error) {
	want := true
	if patch.AutoStartUI != nil {
		want = *patch.AutoStartUI
	}
	_, have, err := m.enabled()
	if err != nil {
		return model.AutostartResult{Error: err.Error()}, nil
	}

	switch {
	case want && !have:
		if err := m.backend.set(m.entryName, m.command); err != nil {
			log.WithFields(log.Fields{"entry": m.entryName, "error": err}).Error("Error enabling UI autostart")
			return model.AutostartResult{Error: fmt.Sprintf("failed enabling UI autostart: %v", err)}, nil
		}
		log.WithFields(log.Fields{"entry": m.entryName, "command": m.command}).Info("Enabled UI autostart")
	case !want && have:
		if err := m.backend.remove(m.entryName); err != nil && !errors.Is(err, ErrNoEntry) {
			log.WithFields(log.Fields{"entry": m.entryName, "error": err}).Error("Error disabling UI autostart")
			return model.AutostartResult{Error: fmt.Sprintf("failed disabling UI autostart: %v", err)}, nil
		}
		log.WithField("entry", m.entryName).Info("Disabled UI autostart")
	}
	return model.AutostartResult{UIAutostart: true}, nil
}
