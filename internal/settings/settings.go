// Package settings loads the agent's own runtime settings: where it keeps its
// files, which address the control plane binds, and how it logs. The homework
// configuration document the user edits lives in internal/model instead.
package settings

import (
	"errors"
	"fmt"
	"github.com/pelletier/go-toml/v2"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAppName            = "AutoHomework"
	defaultWindowTitle        = "Auto Homework"
	defaultControlAddr        = "127.0.0.1:58701"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultTickIntervalMillis = 1000
	defaultJoinTimeoutMillis  = 2000
	defaultShutdownSeconds    = 5
)

// Settings holds agent runtime settings.
type Settings struct {
	AppName       string `toml:"app_name"`
	WindowTitle   string `toml:"window_title"`
	ControlAddr   string `toml:"control_addr"`
	LockDir       string `toml:"lock_dir"`
	DataDir       string `toml:"data_dir"`
	UIURL         string `toml:"ui_url"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	Notifications bool   `toml:"notifications"`

	TickIntervalMillis int `toml:"tick_interval_ms"`
	JoinTimeoutMillis  int `toml:"join_timeout_ms"`
	ShutdownSeconds    int `toml:"shutdown_timeout_seconds"`
}

func Default() Settings {
	return Settings{
		AppName:            defaultAppName,
		WindowTitle:        defaultWindowTitle,
		ControlAddr:        defaultControlAddr,
		LogLevel:           defaultLogLevel,
		LogFormat:          defaultLogFormat,
		Notifications:      true,
		TickIntervalMillis: defaultTickIntervalMillis,
		JoinTimeoutMillis:  defaultJoinTimeoutMillis,
		ShutdownSeconds:    defaultShutdownSeconds,
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the normalized defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(b, &s); err != nil {
				return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}
	if err := s.normalize(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) normalize() error {
	s.AppName = strings.TrimSpace(s.AppName)
	if s.AppName == "" {
		s.AppName = defaultAppName
	}
	if strings.ContainsAny(s.AppName, `/\`) {
		return fmt.Errorf("app_name %q must not contain path separators", s.AppName)
	}
	if strings.TrimSpace(s.WindowTitle) == "" {
		s.WindowTitle = defaultWindowTitle
	}
	if strings.TrimSpace(s.ControlAddr) == "" {
		s.ControlAddr = defaultControlAddr
	}
	if strings.TrimSpace(s.LockDir) == "" {
		s.LockDir = os.TempDir()
	}
	if strings.TrimSpace(s.DataDir) == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return fmt.Errorf("data_dir: %w", err)
		}
		s.DataDir = dir
	}
	if strings.TrimSpace(s.UIURL) == "" {
		s.UIURL = "http://" + s.ControlAddr + "/"
	}
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	if s.LogLevel == "" {
		s.LogLevel = defaultLogLevel
	}
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	switch s.LogFormat {
	case "auto", "text", "json":
	default:
		s.LogFormat = defaultLogFormat
	}
	if s.TickIntervalMillis <= 0 {
		s.TickIntervalMillis = defaultTickIntervalMillis
	}
	if s.JoinTimeoutMillis <= 0 {
		s.JoinTimeoutMillis = defaultJoinTimeoutMillis
	}
	if s.ShutdownSeconds <= 0 {
		s.ShutdownSeconds = defaultShutdownSeconds
	}
	return nil
}

// LockPath is the lock record location, outside the install directory.
func (s Settings) LockPath() string {
	return filepath.Join(s.LockDir, s.AppName+".lock")
}

func (s Settings) HistoryPath() string {
	return filepath.Join(s.DataDir, "history.db")
}

func (s Settings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMillis) * time.Millisecond
}

func (s Settings) JoinTimeout() time.Duration {
	return time.Duration(s.JoinTimeoutMillis) * time.Millisecond
}

func (s Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSeconds) * time.Second
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "Auto_Homework"), nil
}
